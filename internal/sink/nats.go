package sink

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/oranjParker/Pawmap/internal/core"
	"github.com/rotisserie/eris"
)

// Publisher is the JetStream publish call the sink needs.
type Publisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

type NatsSink struct {
	JS      Publisher
	Subject string
}

func NewNatsSink(js Publisher, subject string) *NatsSink {
	return &NatsSink{
		JS:      js,
		Subject: subject,
	}
}

func (n *NatsSink) Write(ctx context.Context, r core.Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return eris.Wrap(err, "nats marshal failed")
	}

	if _, err := n.JS.Publish(n.Subject, data, nats.Context(ctx), nats.MsgId(r.ID())); err != nil {
		return eris.Wrapf(err, "publish place %s", r.ID())
	}
	return nil
}

func (n *NatsSink) Close() error {
	return nil
}

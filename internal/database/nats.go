package database

import (
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rotisserie/eris"
)

type NatsConn struct {
	Conn *nats.Conn
	JS   nats.JetStreamContext
}

func NewNatsConnection(url string) (*NatsConn, error) {
	if url == "" {
		url = nats.DefaultURL
	}

	nc, err := nats.Connect(url,
		nats.Name("pawmap"),
		nats.Timeout(10*time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to connect to NATS at %s", url)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, eris.Wrap(err, "failed to initialize JetStream")
	}

	return &NatsConn{
		Conn: nc,
		JS:   js,
	}, nil
}

// EnsureStream creates the stream carrying subject when it does not exist.
func (n *NatsConn) EnsureStream(name, subject string) error {
	if _, err := n.JS.StreamInfo(name); err == nil {
		return nil
	} else if !errors.Is(err, nats.ErrStreamNotFound) {
		return eris.Wrapf(err, "look up stream %s", name)
	}
	if _, err := n.JS.AddStream(&nats.StreamConfig{
		Name:     name,
		Subjects: []string{subject},
		Storage:  nats.FileStorage,
	}); err != nil {
		return eris.Wrapf(err, "create stream %s", name)
	}
	return nil
}

func (n *NatsConn) Close() {
	if n.Conn != nil {
		n.Conn.Drain()
	}
}

package core

import (
	"context"
	"fmt"
)

// Record is one place as it travels through the pipeline. Stages add keys,
// nothing removes them until the final projection.
type Record map[string]any

const KeyID = "id"

func (r Record) ID() string {
	v, ok := r[KeyID]
	if !ok || v == nil {
		return ""
	}
	switch id := v.(type) {
	case string:
		return id
	case fmt.Stringer:
		return id.String()
	default:
		return fmt.Sprint(id)
	}
}

func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// String returns the value under key when it is a string.
func (r Record) String(key string) string {
	s, _ := r[key].(string)
	return s
}

func (r Record) Strings(key string) []string {
	switch v := r[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Stage is one barrier-separated step of a run. It receives every accumulated
// record and returns the per-place results to merge back by id.
type Stage interface {
	Name() string
	Run(ctx context.Context, records []Record) ([]Record, error)
}

type StageFunc struct {
	StageName string
	Fn        func(context.Context, []Record) ([]Record, error)
}

func (s *StageFunc) Name() string { return s.StageName }

func (s *StageFunc) Run(ctx context.Context, records []Record) ([]Record, error) {
	return s.Fn(ctx, records)
}

type Sink[T any] interface {
	Write(ctx context.Context, item T) error
	Close() error
}

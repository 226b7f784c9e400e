package sink

import (
	"context"

	"github.com/oranjParker/Pawmap/internal/core"
)

// WriteAll pushes records through a sink and closes it. Failed writes are
// counted, not fatal.
func WriteAll(ctx context.Context, s core.Sink[core.Record], records []core.Record) (int, error) {
	written := 0
	var firstErr error
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			firstErr = err
			break
		}
		if err := s.Write(ctx, r); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		written++
	}
	if err := s.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return written, firstErr
}

package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jirevwe/litecollector/job"
)

// Saver is implemented by Store.
type Saver interface {
	Save(ctx context.Context, r *job.Result) (string, error)
}

// PostCollector returns a post-collect phase that saves successful and failed
// results before passing them on. Faults are passed through unsaved, and a
// result that cannot be saved turns the request into a fault.
func PostCollector(s Saver, logger *slog.Logger) job.PostCollectFunc {
	return func(ctx context.Context, collected job.Outcome) (*job.Result, error) {
		if collected.IsFault() {
			return job.PassThrough(ctx, collected)
		}

		id, err := s.Save(ctx, collected.Result())
		if err != nil {
			return nil, fmt.Errorf("cannot save result of request %s: %w", collected.RequestID(), err)
		}

		logger.Debug("stored collection result", "request_id", collected.RequestID(), "id", id, "outcome", collected.Kind().String())
		return collected.Result(), nil
	}
}

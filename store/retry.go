package store

import (
	"context"
	"errors"
	"time"

	"github.com/mattn/go-sqlite3"
)

type Retry struct {
	sleepDuration time.Duration
	RetryFunc     func() error
	numTries      int

	// decides whether an error is worth another try, nil retries every error
	retryIf func(error) bool
}

func NewRetry(numTries int, sleepDuration time.Duration, retryFunc func() error) *Retry {
	return &Retry{
		sleepDuration: sleepDuration,
		RetryFunc:     retryFunc,
		numTries:      numTries,
	}
}

// RetryIf limits retries to the errors for which fn returns true.
func (r *Retry) RetryIf(fn func(error) bool) *Retry {
	r.retryIf = fn
	return r
}

// Do calls RetryFunc until it succeeds, returns an error that should not be
// retried or runs out of tries. The last error is returned.
func (r *Retry) Do(ctx context.Context) error {
	var err error
	for i := 0; i < r.numTries; i++ {
		err = r.RetryFunc()
		if err == nil {
			return nil
		}

		if r.retryIf != nil && !r.retryIf(err) {
			return err
		}

		if i == r.numTries-1 {
			break
		}

		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(r.sleepDuration):
		}
	}

	return err
}

// isBusy reports whether err comes from sqlite giving up on a lock.
func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
}

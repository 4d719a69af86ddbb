package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jirevwe/litecollector/job"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

var slogger = slog.New(slog.NewTextHandler(os.Stdout, nil))

func openStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(DriverSqlite, filepath.Join(t.TempDir(), "litecollector.db"), slogger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func TestStore_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	r := job.NewResult("req-1", "weather", "complete", job.Payload{
		"city":    "Lagos",
		"cached":  true,
		"celsius": 31.5,
	})

	id, err := s.Save(ctx, r)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	results, err := s.Get(ctx, "req-1")
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, r, results[0])
}

func TestStore_SaveFailedResult(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	r := job.NewResult("req-1", "weather", "", job.Payload{}).
		WithError(job.NewError("upstreamUnavailable").With("status", "503"))

	_, err := s.Save(ctx, r)
	require.NoError(t, err)

	results, err := s.Get(ctx, "req-1")
	require.NoError(t, err)
	require.Len(t, results, 1)

	got := results[0]
	require.NotNil(t, got.Error)
	require.Equal(t, "upstreamUnavailable", got.Error.Name)

	status, ok := got.Error.Field("status")
	require.True(t, ok)
	require.Equal(t, "503", status)
}

func TestStore_GetOrdersByInsertion(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	for i := 0; i < 3; i++ {
		_, err := s.Save(ctx, job.NewResult("req-1", fmt.Sprintf("source-%d", i), "complete", nil))
		require.NoError(t, err)
	}
	_, err := s.Save(ctx, job.NewResult("req-2", "other", "complete", nil))
	require.NoError(t, err)

	results, err := s.Get(ctx, "req-1")
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, r := range results {
		require.Equal(t, fmt.Sprintf("source-%d", i), r.Source)
	}

	results, err = s.Get(ctx, "unknown")
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestStore_SaveConcurrently(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	wg := &sync.WaitGroup{}

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := s.Save(ctx, job.NewResult(fmt.Sprintf("req-%d", i), "source", "complete", nil)); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	n, err := s.Count(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 20, n)
}

func TestStore_SaveNilResult(t *testing.T) {
	s := openStore(t)

	_, err := s.Save(context.Background(), nil)
	require.ErrorIs(t, err, job.ErrNilResult)
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open("mysql", "root@/results", slogger)
	require.ErrorIs(t, err, ErrUnsupportedDriver)
}

func TestOpen_ReopenKeepsResults(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "litecollector.db")

	s, err := Open(DriverSqlite, path, slogger)
	require.NoError(t, err)
	_, err = s.Save(ctx, job.NewResult("req-1", "source", "complete", nil))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(DriverSqlite, path, slogger)
	require.NoError(t, err)
	defer s.Close()

	n, err := s.Count(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestRetry_ReturnsLastError(t *testing.T) {
	calls := 0
	busy := sqlite3.Error{Code: sqlite3.ErrBusy}

	err := NewRetry(3, time.Millisecond, func() error {
		calls++
		return busy
	}).RetryIf(isBusy).Do(context.Background())

	require.Equal(t, 3, calls)
	require.ErrorIs(t, err, busy)
}

func TestRetry_StopsOnSuccess(t *testing.T) {
	calls := 0

	err := NewRetry(5, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return sqlite3.Error{Code: sqlite3.ErrLocked}
		}
		return nil
	}).RetryIf(isBusy).Do(context.Background())

	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestRetry_DoesNotRetryOtherErrors(t *testing.T) {
	calls := 0
	errConstraint := errors.New("UNIQUE constraint failed")

	err := NewRetry(5, time.Millisecond, func() error {
		calls++
		return errConstraint
	}).RetryIf(isBusy).Do(context.Background())

	require.ErrorIs(t, err, errConstraint)
	require.Equal(t, 1, calls)
}

func TestRetry_StopsWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := NewRetry(5, time.Hour, func() error {
		calls++
		return errors.New("still failing")
	}).Do(ctx)

	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}

type failingSaver struct{ err error }

func (f failingSaver) Save(context.Context, *job.Result) (string, error) { return "", f.err }

func TestPostCollector_SavesSuccessAndFailure(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	post := PostCollector(s, slogger)

	ok := job.NewResult("req-ok", "source", "complete", job.Payload{"a": "b"})
	got, err := post(ctx, job.Of("req-ok", ok))
	require.NoError(t, err)
	require.Same(t, ok, got)

	timedOut := job.TimedOut("req-slow", "collect")
	got, err = post(ctx, timedOut)
	require.NoError(t, err)
	require.Equal(t, job.TimeoutErrorName, got.Error.Name)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	results, err := s.Get(ctx, "req-slow")
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, job.TimeoutErrorName, results[0].Error.Name)
}

func TestPostCollector_PassesFaultsThrough(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	cause := errors.New("collect blew up")

	got, err := PostCollector(s, slogger)(ctx, job.Faulted("req", cause))
	require.Nil(t, got)
	require.ErrorIs(t, err, cause)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestPostCollector_SaveErrorIsReturned(t *testing.T) {
	saveErr := errors.New("disk full")
	post := PostCollector(failingSaver{err: saveErr}, slogger)

	got, err := post(context.Background(), job.Of("req", job.NewResult("req", "source", "complete", nil)))
	require.Nil(t, got)
	require.ErrorIs(t, err, saveErr)
}

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jirevwe/litecollector/job"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	DriverSqlite   = "sqlite3"
	DriverPostgres = "postgres"

	saveTries      = 5
	saveRetryDelay = 50 * time.Millisecond
)

var ErrUnsupportedDriver = errors.New("unsupported store driver")

var (
	createSqliteResults = `create table if not exists collector_results (
			id TEXT not null primary key,
			request_id TEXT not null,
			source TEXT not null,
			quality TEXT not null,
			created TEXT not null,
			payload BLOB,
			error BLOB,
			inserted_at TEXT not null default (strftime('%Y-%m-%dT%H:%M:%fZ'))
		) strict;`

	createPostgresResults = `create table if not exists collector_results (
			id TEXT not null primary key,
			request_id TEXT not null,
			source TEXT not null,
			quality TEXT not null,
			created TEXT not null,
			payload BYTEA,
			error BYTEA,
			inserted_at TIMESTAMPTZ not null default now()
		);`

	createRequestIndex = `create index if not exists idx_collector_results_request_id on collector_results (request_id);`

	insertResult = `insert into collector_results (id, request_id, source, quality, created, payload, error) values ($1, $2, $3, $4, $5, $6, $7)`

	selectByRequest = `select id, request_id, source, quality, created, payload, error from collector_results where request_id = $1 order by id`

	countResults = `select count(*) from collector_results`
)

// row is a job.Result as stored, with its payload and error msgpack encoded.
type row struct {
	Id        string `db:"id"`
	RequestId string `db:"request_id"`
	Source    string `db:"source"`
	Quality   string `db:"quality"`
	Created   string `db:"created"`
	Payload   []byte `db:"payload"`
	Error     []byte `db:"error"`
}

// Store persists collection results in sqlite or postgres.
type Store struct {
	logger *slog.Logger
	db     *sqlx.DB
}

// Open connects to the database and creates the results table. For sqlite the
// dsn is a file path.
func Open(driver, dsn string, logger *slog.Logger) (*Store, error) {
	var schema string

	switch driver {
	case DriverSqlite:
		schema = createSqliteResults
		if !strings.Contains(dsn, "?") {
			dsn = fmt.Sprintf("%s?mode=rwc&_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", dsn)
		}
	case DriverPostgres:
		schema = createPostgresResults
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	if driver == DriverSqlite {
		// one writer at a time, busy errors from other processes are retried
		db.SetMaxOpenConns(1)

		_, err = db.Exec("PRAGMA journal_size_limit = 67108864;")
		if err != nil {
			_ = db.Close()
			return nil, err
		}

		_, err = db.Exec("PRAGMA cache_size = 2000;")
		if err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{db: db, logger: logger}

	ctx := context.Background()
	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		// create results table
		_, err = tx.ExecContext(ctx, schema)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, createRequestIndex)
		if err != nil {
			return err
		}

		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// Save writes r and returns the id of the new row.
func (s *Store) Save(ctx context.Context, r *job.Result) (string, error) {
	if r == nil {
		return "", job.ErrNilResult
	}

	payload, err := msgpack.Marshal(r.Payload)
	if err != nil {
		return "", fmt.Errorf("cannot encode payload: %w", err)
	}

	var jobErr []byte
	if r.Error != nil {
		jobErr, err = msgpack.Marshal(r.Error.Map())
		if err != nil {
			return "", fmt.Errorf("cannot encode error: %w", err)
		}
	}

	id := ulid.Make().String()
	retry := NewRetry(saveTries, saveRetryDelay, func() error {
		return s.inTx(ctx, func(tx *sqlx.Tx) error {
			_, innerErr := tx.ExecContext(ctx, insertResult, id, r.RequestID, r.Source, r.Quality, r.CreatedAt, payload, jobErr)
			return innerErr
		})
	})
	retry.RetryIf(isBusy)

	if err = retry.Do(ctx); err != nil {
		return "", err
	}

	s.logger.Debug("saved collection result", "id", id, "request_id", r.RequestID)
	return id, nil
}

// Get returns the results saved for requestID, oldest first.
func (s *Store) Get(ctx context.Context, requestID string) ([]*job.Result, error) {
	var rows []row
	if err := s.db.SelectContext(ctx, &rows, selectByRequest, requestID); err != nil {
		return nil, err
	}

	results := make([]*job.Result, 0, len(rows))
	for i := range rows {
		r, err := rows[i].toResult()
		if err != nil {
			return nil, fmt.Errorf("cannot decode result %s: %w", rows[i].Id, err)
		}
		results = append(results, r)
	}

	return results, nil
}

// Count returns the number of saved results.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, countResults); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (r *row) toResult() (*job.Result, error) {
	result := &job.Result{
		RequestID: r.RequestId,
		Source:    r.Source,
		Quality:   r.Quality,
		CreatedAt: r.Created,
	}

	if len(r.Payload) > 0 {
		if err := msgpack.Unmarshal(r.Payload, &result.Payload); err != nil {
			return nil, err
		}
	}

	if len(r.Error) > 0 {
		var m map[string]any
		if err := msgpack.Unmarshal(r.Error, &m); err != nil {
			return nil, err
		}
		result.Error = job.ErrorFromMap(m)
	}

	return result, nil
}

func (s *Store) inTx(ctx context.Context, cb func(*sqlx.Tx) error) (err error) {
	tx, beginErr := s.db.BeginTxx(ctx, nil)
	if beginErr != nil {
		return fmt.Errorf("cannot start tx: %w", beginErr)
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = rollback(tx, nil)
			panic(rec)
		}
	}()

	if err = cb(tx); err != nil {
		return rollback(tx, err)
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return fmt.Errorf("cannot commit tx: %w", commitErr)
	}

	return nil
}

func rollback(tx *sqlx.Tx, err error) error {
	if rollbackErr := tx.Rollback(); rollbackErr != nil {
		return fmt.Errorf("cannot roll back tx after error (tx error: %v), original error: %w", rollbackErr, err)
	}
	return err
}

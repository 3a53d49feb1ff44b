package infra

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// SQLExecutor is what repositories and the postgres ledger run statements through.
type SQLExecutor interface {
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row
	Query(ctx context.Context, query string, args ...any) (pgx.Rows, error)
}

// Querier is satisfied by *pgxpool.Pool, pgx.Tx and *pgx.Conn.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// QueryObserver receives the marker, latency and error of every statement.
type QueryObserver func(marker string, took time.Duration, err error)

// ErrMissingMarker rejects statements without a leading "--sql <uuid>" line.
var ErrMissingMarker = errors.New("infra: sql marker missing or invalid")

const defaultSlowQuery = 250 * time.Millisecond

var markerRegexp = regexp.MustCompile(`^--sql ([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})$`)

// SQLRunner refuses unmarked statements, strips the marker before sending
// the rest to postgres and logs by marker instead of statement text.
// Statements slower than SlowQuery are logged at warn.
type SQLRunner struct {
	db        Querier
	logger    Logger
	observe   QueryObserver
	SlowQuery time.Duration
}

func NewSQLRunner(db Querier, logger Logger) *SQLRunner {
	return &SQLRunner{db: db, logger: logger, SlowQuery: defaultSlowQuery}
}

// Observe installs fn as the latency sink and returns r.
func (r *SQLRunner) Observe(fn QueryObserver) *SQLRunner {
	r.observe = fn
	return r
}

func (r *SQLRunner) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	marker, body, err := ParseMarker(query)
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	start := time.Now()
	tag, err := r.db.Exec(ctx, body, args...)
	r.done(marker, "exec", start, err)
	if err == nil {
		r.logger.Debug().Str("sql", marker).Int64("rows", tag.RowsAffected()).Msg("sql: exec")
	}
	return tag, err
}

func (r *SQLRunner) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	marker, body, err := ParseMarker(query)
	if err != nil {
		return errorRow{err: err}
	}
	return &timedRow{
		row:    r.db.QueryRow(ctx, body, args...),
		runner: r,
		marker: marker,
		start:  time.Now(),
	}
}

func (r *SQLRunner) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	marker, body, err := ParseMarker(query)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	rows, err := r.db.Query(ctx, body, args...)
	if err != nil {
		r.done(marker, "query", start, err)
		return nil, err
	}
	return &timedRows{Rows: rows, runner: r, marker: marker, start: start}, nil
}

// done logs and observes one finished statement. A missing row is a normal
// outcome for lookups and is not reported as a failure.
func (r *SQLRunner) done(marker, op string, start time.Time, err error) {
	took := time.Since(start)
	if IsNoRows(err) {
		err = nil
	}
	if r.observe != nil {
		r.observe(marker, took, err)
	}
	switch {
	case err != nil:
		r.logger.Error().Err(err).Str("sql", marker).Str("op", op).Dur("took", took).Msg("sql: statement failed")
	case r.SlowQuery > 0 && took >= r.SlowQuery:
		r.logger.Warn().Str("sql", marker).Str("op", op).Dur("took", took).Msg("sql: slow statement")
	}
}

type timedRow struct {
	row    pgx.Row
	runner *SQLRunner
	marker string
	start  time.Time
}

func (t *timedRow) Scan(dest ...any) error {
	err := t.row.Scan(dest...)
	t.runner.done(t.marker, "query_row", t.start, err)
	return err
}

type timedRows struct {
	pgx.Rows
	runner *SQLRunner
	marker string
	start  time.Time
	closed bool
}

func (t *timedRows) Close() {
	t.Rows.Close()
	if t.closed {
		return
	}
	t.closed = true
	t.runner.done(t.marker, "query", t.start, t.Rows.Err())
}

type errorRow struct {
	err error
}

func (e errorRow) Scan(...any) error {
	return e.err
}

// ParseMarker splits a statement into its marker uuid and the SQL after it.
func ParseMarker(query string) (marker, body string, err error) {
	first, rest, _ := strings.Cut(strings.TrimSpace(query), "\n")
	m := markerRegexp.FindStringSubmatch(strings.TrimSpace(first))
	if m == nil {
		return "", "", ErrMissingMarker
	}
	body = strings.TrimSpace(rest)
	if body == "" {
		return "", "", errors.New("infra: sql statement is empty")
	}
	return m[1], body, nil
}

// IsNoRows reports whether err means the query matched nothing.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

var _ SQLExecutor = (*SQLRunner)(nil)

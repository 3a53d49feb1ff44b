package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"charagen/internal/domain"
	"charagen/internal/sqlinline"
)

type execCall struct {
	query string
	args  []any
}

type stubExecutor struct {
	execs   []execCall
	execErr error
	rows    *stubRows
}

func (s *stubExecutor) Exec(_ context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.execs = append(s.execs, execCall{query: query, args: args})
	return pgconn.NewCommandTag("INSERT 0 1"), s.execErr
}

func (s *stubExecutor) QueryRow(context.Context, string, ...any) pgx.Row {
	return nil
}

func (s *stubExecutor) Query(_ context.Context, query string, args ...any) (pgx.Rows, error) {
	if query != sqlinline.QSelectRecentGenerations {
		return nil, errors.New("unexpected query")
	}
	s.rows.args = args
	return s.rows, nil
}

type stubRows struct {
	data [][]any
	pos  int
	args []any
}

func (r *stubRows) Close() {}
func (r *stubRows) Err() error { return nil }
func (r *stubRows) CommandTag() pgconn.CommandTag { return pgconn.CommandTag{} }
func (r *stubRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *stubRows) Values() ([]any, error) { return nil, errors.New("not supported") }
func (r *stubRows) RawValues() [][]byte { return nil }
func (r *stubRows) Conn() *pgx.Conn { return nil }

func (r *stubRows) Next() bool {
	if r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *stubRows) Scan(dest ...any) error {
	row := r.data[r.pos-1]
	*dest[0].(*string) = row[0].(string)
	*dest[1].(*string) = row[1].(string)
	*dest[2].(*string) = row[2].(string)
	*dest[3].(*[]byte) = row[3].([]byte)
	*dest[4].(*string) = row[4].(string)
	*dest[5].(*time.Time) = row[5].(time.Time)
	return nil
}

func TestRecordTerminalJob(t *testing.T) {
	exec := &stubExecutor{}
	r := NewGenerationRepository(exec)

	err := r.Record(context.Background(), "user-1", domain.GenerationJob{
		ID:         "job-1",
		Status:     domain.JobStatusSucceeded,
		OutputURLs: []string{"https://cdn.example/a.png"},
	})
	require.NoError(t, err)
	require.Len(t, exec.execs, 1)
	call := exec.execs[0]
	assert.Equal(t, sqlinline.QInsertGeneration, call.query)
	assert.Equal(t, "user-1", call.args[0])
	assert.Equal(t, "job-1", call.args[1])
	assert.Equal(t, "succeeded", call.args[2])
	assert.JSONEq(t, `["https://cdn.example/a.png"]`, string(call.args[3].([]byte)))
}

func TestRecordWritesEmptyOutputArray(t *testing.T) {
	exec := &stubExecutor{}
	r := NewGenerationRepository(exec)

	require.NoError(t, r.Record(context.Background(), "user-1", domain.GenerationJob{ID: "job-1", Status: domain.JobStatusCanceled}))
	assert.JSONEq(t, `[]`, string(exec.execs[0].args[3].([]byte)))
}

func TestRecordRejectsInvalidJobs(t *testing.T) {
	exec := &stubExecutor{}
	r := NewGenerationRepository(exec)

	assert.Error(t, r.Record(context.Background(), "user-1", domain.GenerationJob{Status: domain.JobStatusFailed}))
	assert.Error(t, r.Record(context.Background(), "user-1", domain.GenerationJob{ID: "job-1", Status: domain.JobStatusProcessing}))
	assert.Empty(t, exec.execs)
}

func TestRecordWrapsExecError(t *testing.T) {
	boom := errors.New("boom")
	r := NewGenerationRepository(&stubExecutor{execErr: boom})

	err := r.Record(context.Background(), "user-1", domain.GenerationJob{ID: "job-1", Status: domain.JobStatusFailed})
	assert.ErrorIs(t, err, boom)
}

func TestListRecent(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rows := &stubRows{data: [][]any{
		{"job-2", "user-1", "failed", []byte(`[]`), "NSFW content detected", created},
		{"job-1", "user-1", "succeeded", []byte(`["https://cdn.example/a.png"]`), "", created.Add(-time.Hour)},
	}}
	r := NewGenerationRepository(&stubExecutor{rows: rows})

	records, err := r.ListRecent(context.Background(), "user-1", 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, domain.JobStatusFailed, records[0].Status)
	assert.Equal(t, "NSFW content detected", records[0].ErrorMessage)
	assert.Equal(t, []string{"https://cdn.example/a.png"}, records[1].OutputURLs)
	assert.Equal(t, maxHistoryLimit, rows.args[1])
}

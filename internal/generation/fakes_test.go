package generation

import (
	"context"
	"sync"

	"charagen/internal/domain"
	"charagen/internal/providers/inference"
)

type pollResult struct {
	job *inference.Job
	err error
}

// fakeProvider replays scripted poll results; the last one repeats.
type fakeProvider struct {
	mu        sync.Mutex
	createJob *inference.Job
	createErr error
	created   []inference.JobRequest
	polls     []pollResult
	pollCount int
	cancelErr error
	canceled  []string
	// gate, when set, holds every GetJob until it is closed or ctx ends.
	gate chan struct{}
}

func newFakeProvider(jobID string, polls ...pollResult) *fakeProvider {
	return &fakeProvider{
		createJob: &inference.Job{ID: jobID, Status: "starting"},
		polls:     polls,
	}
}

func (f *fakeProvider) CreateJob(_ context.Context, req inference.JobRequest) (*inference.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, req)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.createJob, nil
}

func (f *fakeProvider) GetJob(ctx context.Context, jobID string) (*inference.Job, error) {
	f.mu.Lock()
	idx := f.pollCount
	f.pollCount++
	result := pollResult{job: &inference.Job{ID: jobID, Status: "processing"}}
	if len(f.polls) > 0 {
		if idx >= len(f.polls) {
			idx = len(f.polls) - 1
		}
		result = f.polls[idx]
	}
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return result.job, result.err
}

func (f *fakeProvider) CancelJob(_ context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = append(f.canceled, jobID)
	return f.cancelErr
}

func (f *fakeProvider) pollsSeen() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pollCount
}

func (f *fakeProvider) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func (f *fakeProvider) cancelCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.canceled)
}

type fakeGate struct {
	mu    sync.Mutex
	allow bool
	err   error
	calls int
}

func (g *fakeGate) CheckAndReserve(context.Context, string, bool) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return g.allow, g.err
}

func (g *fakeGate) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type fakeRecorder struct {
	mu   sync.Mutex
	jobs []domain.GenerationJob
}

func (r *fakeRecorder) Record(_ context.Context, _ string, job domain.GenerationJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job)
	return nil
}

func (r *fakeRecorder) recorded() []domain.GenerationJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.GenerationJob(nil), r.jobs...)
}

type countingMetrics struct {
	mu        sync.Mutex
	submitted int
	rejected  map[domain.ErrorKind]int
	polls     int
	finished  map[domain.JobStatus]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{rejected: map[domain.ErrorKind]int{}, finished: map[domain.JobStatus]int{}}
}

func (m *countingMetrics) JobSubmitted() {
	m.mu.Lock()
	m.submitted++
	m.mu.Unlock()
}

func (m *countingMetrics) SubmissionRejected(kind domain.ErrorKind) {
	m.mu.Lock()
	m.rejected[kind]++
	m.mu.Unlock()
}

func (m *countingMetrics) PollAttempt() {
	m.mu.Lock()
	m.polls++
	m.mu.Unlock()
}

func (m *countingMetrics) JobFinished(status domain.JobStatus) {
	m.mu.Lock()
	m.finished[status]++
	m.mu.Unlock()
}

func remote(id, status string, output ...string) pollResult {
	return pollResult{job: &inference.Job{ID: id, Status: status, Output: output}}
}

func fixedSeed() int64 { return 42 }

func failedRemote(id, msg string) pollResult {
	return pollResult{job: &inference.Job{ID: id, Status: "processing", Error: msg}}
}

func (m *countingMetrics) finishedCount(status domain.JobStatus) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finished[status]
}

func (m *countingMetrics) rejectedCount(kind domain.ErrorKind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rejected[kind]
}

func (m *countingMetrics) submittedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.submitted
}

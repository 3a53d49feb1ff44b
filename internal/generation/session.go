package generation

import (
	"context"
	"errors"
	"sync"
	"time"

	"charagen/internal/domain"
	"charagen/internal/infra"
)

// Reserver is the credit gate consulted before every submission.
type Reserver interface {
	CheckAndReserve(ctx context.Context, userID string, privileged bool) (bool, error)
}

// Recorder persists terminal jobs.
type Recorder interface {
	Record(ctx context.Context, userID string, job domain.GenerationJob) error
}

// Dependencies are shared by every session of a Manager.
type Dependencies struct {
	Gate      Reserver
	Submitter *Submitter
	Poller    *Poller
	Provider  Provider
	Recorder  Recorder
	Metrics   Metrics
	Logger    *infra.Logger
	// RecordTimeout bounds a single Recorder call. Defaults to 5s.
	RecordTimeout time.Duration
}

// State is a point-in-time copy of a session.
type State struct {
	IsGenerating bool             `json:"is_generating"`
	Status       domain.JobStatus `json:"status"`
	OutputURL    string           `json:"output_url"`
	OutputURLs   []string         `json:"output_urls"`
	Error        string           `json:"error"`
	JobID        string           `json:"job_id"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

type jobRun struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Session owns the generation state of one user: at most one job in flight,
// created on submit, mutated by the poller or Cancel, discarded on reset.
type Session struct {
	userID  string
	baseCtx context.Context
	gate    Reserver
	sub     *Submitter
	poller  *Poller
	prov    Provider
	rec     Recorder
	metrics Metrics
	logger  infra.Logger
	recTO   time.Duration

	mu       sync.Mutex
	state    State
	epoch    uint64
	run      *jobRun
	changed  chan struct{}
	lastUsed time.Time
}

// NewSession creates an idle session. Poll loops started by the session stop
// when ctx is done.
func NewSession(ctx context.Context, userID string, deps Dependencies) *Session {
	metrics := deps.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}
	recTO := deps.RecordTimeout
	if recTO <= 0 {
		recTO = 5 * time.Second
	}
	logger := infra.LoggerOrDiscard(deps.Logger).With().Str("user_id", userID).Logger()
	return &Session{
		userID:   userID,
		baseCtx:  ctx,
		gate:     deps.Gate,
		sub:      deps.Submitter,
		poller:   deps.Poller,
		prov:     deps.Provider,
		rec:      deps.Recorder,
		metrics:  metrics,
		logger:   logger,
		recTO:    recTO,
		state:    State{Status: domain.JobStatusIdle, UpdatedAt: time.Now()},
		changed:  make(chan struct{}),
		lastUsed: time.Now(),
	}
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	st.OutputURLs = append([]string(nil), s.state.OutputURLs...)
	return st
}

// Generate runs the credit gate and submits req, then polls the job in the
// background. It returns true once the provider accepted the job. A session
// with a job in flight rejects the call without touching that job.
func (s *Session) Generate(ctx context.Context, privileged bool, req domain.GenerationRequest) (bool, error) {
	s.mu.Lock()
	if s.state.IsGenerating {
		s.mu.Unlock()
		s.metrics.SubmissionRejected(domain.KindValidation)
		return false, domain.ValidationError("A generation is already in progress", domain.ErrAlreadyGenerating)
	}
	s.resetLocked()
	s.state.IsGenerating = true
	token := s.epoch
	s.touchLocked()
	s.notifyLocked()
	s.mu.Unlock()

	payload, err := s.sub.Prepare(req)
	if err != nil {
		return false, s.abort(token, err)
	}

	ok, err := s.gate.CheckAndReserve(ctx, s.userID, privileged)
	if !ok {
		if err == nil {
			err = domain.CreditError("", domain.ErrInsufficientCredit)
		}
		return false, s.abort(token, err)
	}

	submission, err := s.sub.SubmitPrepared(ctx, payload)
	if err != nil {
		// The reserved credit is not refunded here.
		return false, s.abort(token, err)
	}
	s.metrics.JobSubmitted()

	runCtx, cancel := context.WithCancel(s.baseCtx)
	run := &jobRun{cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	s.state.JobID = submission.JobID
	if submission.Status == domain.JobStatusProcessing {
		s.state.Status = domain.JobStatusProcessing
	}
	s.state.UpdatedAt = time.Now()
	s.run = run
	s.notifyLocked()
	s.mu.Unlock()

	s.logger.Info().Str("job_id", submission.JobID).Bool("privileged", privileged).Msg("generation: started")
	go s.poll(runCtx, token, submission.JobID, run)
	return true, nil
}

// Cancel stops the current job. The local state becomes canceled whatever the
// provider answers; a provider error is kept as the job's error message. It is
// a no-op when no job id is held or the job already reached a terminal state.
func (s *Session) Cancel(ctx context.Context) {
	s.mu.Lock()
	jobID := s.state.JobID
	if jobID == "" || s.state.Status.Terminal() {
		s.mu.Unlock()
		return
	}
	token := s.epoch
	run := s.run
	job := domain.GenerationJob{ID: jobID, Status: domain.JobStatusCanceled}
	s.applyLocked(token, job)
	s.touchLocked()
	s.mu.Unlock()

	if run != nil {
		run.cancel()
	}

	if err := s.prov.CancelJob(ctx, jobID); err != nil {
		cancelErr := domain.CancellationError(NormalizeError(err), err)
		job.ErrorMessage = NormalizeError(cancelErr)
		s.logger.Warn().Err(cancelErr).Str("job_id", jobID).Msg("generation: remote cancel failed, canceled locally")

		s.mu.Lock()
		if token == s.epoch && s.state.JobID == jobID && s.state.Status == domain.JobStatusCanceled {
			s.state.Error = job.ErrorMessage
			s.state.UpdatedAt = time.Now()
			s.notifyLocked()
		}
		s.mu.Unlock()
	}
	s.finish(job)
}

// Wait blocks until no job is in flight and its poll loop has exited, or ctx
// ends.
func (s *Session) Wait(ctx context.Context) error {
	for {
		s.mu.Lock()
		if !s.state.IsGenerating {
			run := s.run
			s.mu.Unlock()
			if run == nil {
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-run.done:
				return nil
			}
		}
		ch := s.changed
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// Discard drops a finished job and returns the session to idle.
func (s *Session) Discard() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.IsGenerating {
		return domain.ValidationError("A generation is already in progress", domain.ErrAlreadyGenerating)
	}
	s.epoch++
	s.run = nil
	s.state = State{Status: domain.JobStatusIdle, UpdatedAt: time.Now()}
	s.notifyLocked()
	return nil
}

func (s *Session) poll(ctx context.Context, token uint64, jobID string, run *jobRun) {
	defer close(run.done)
	defer run.cancel()
	_, completed := s.poller.Run(ctx, jobID, func(job domain.GenerationJob) {
		s.mu.Lock()
		finished := s.applyLocked(token, job)
		s.mu.Unlock()
		if finished {
			s.finish(job)
		}
	})
	if completed || s.baseCtx.Err() == nil {
		return
	}
	// Manager shutdown. A user cancel already made the job terminal, so this
	// write is rejected in that case.
	job := domain.GenerationJob{ID: jobID, Status: domain.JobStatusFailed, ErrorMessage: ShutdownMessage}
	s.mu.Lock()
	finished := s.applyLocked(token, job)
	s.mu.Unlock()
	if finished {
		s.finish(job)
	}
}

// resetLocked discards the previous job: status starting, no output, no error.
func (s *Session) resetLocked() {
	s.epoch++
	s.run = nil
	s.state = State{Status: domain.JobStatusStarting, UpdatedAt: time.Now()}
}

// applyLocked writes job into the state when it belongs to the current job and
// the transition is allowed. Terminal states reject every later write. It
// reports whether this write made the job terminal.
func (s *Session) applyLocked(token uint64, job domain.GenerationJob) bool {
	if token != s.epoch || s.state.JobID != job.ID {
		return false
	}
	if !s.state.Status.CanTransition(job.Status) {
		return false
	}
	s.state.Status = job.Status
	s.state.UpdatedAt = time.Now()
	if job.Status.Terminal() {
		s.state.OutputURLs = append([]string(nil), job.OutputURLs...)
		s.state.OutputURL = job.OutputURL()
		s.state.Error = job.ErrorMessage
		if job.Status == domain.JobStatusFailed && s.state.Error == "" {
			s.state.Error = UnknownErrorMessage
		}
		s.state.IsGenerating = false
	}
	s.notifyLocked()
	return job.Status.Terminal()
}

// abort ends a submission that never produced a job.
func (s *Session) abort(token uint64, err error) error {
	msg := NormalizeError(err)
	s.metrics.SubmissionRejected(domain.KindOf(err))
	s.logger.Warn().Err(err).Str("kind", string(domain.KindOf(err))).Msg("generation: submission failed")

	s.mu.Lock()
	if token == s.epoch {
		s.state.Status = domain.JobStatusFailed
		s.state.Error = msg
		s.state.IsGenerating = false
		s.state.UpdatedAt = time.Now()
		s.notifyLocked()
	}
	s.mu.Unlock()
	return err
}

func (s *Session) finish(job domain.GenerationJob) {
	s.metrics.JobFinished(job.Status)
	s.logger.Info().
		Str("job_id", job.ID).
		Str("status", string(job.Status)).
		Str("error", job.ErrorMessage).
		Msg("generation: finished")
	if s.rec == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.baseCtx), s.recTO)
	defer cancel()
	if err := s.rec.Record(ctx, s.userID, job); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("generation: record history failed")
	}
}

func (s *Session) notifyLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *Session) touchLocked() {
	s.lastUsed = time.Now()
}

func (s *Session) touch() {
	s.mu.Lock()
	s.touchLocked()
	s.mu.Unlock()
}

func (s *Session) idleSince() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed, !s.state.IsGenerating
}

// Recorders fans a terminal job out to several recorders. Every recorder is
// called; failures are joined.
type Recorders []Recorder

func (rs Recorders) Record(ctx context.Context, userID string, job domain.GenerationJob) error {
	var errs []error
	for _, r := range rs {
		if r == nil {
			continue
		}
		if err := r.Record(ctx, userID, job); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

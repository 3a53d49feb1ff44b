package generation

import (
	"context"
	"strings"
	"time"

	"charagen/internal/domain"
	"charagen/internal/infra"
	"charagen/internal/providers/inference"
)

// DefaultPollInterval is the delay between two status queries of one job.
const DefaultPollInterval = 1500 * time.Millisecond

// FailedMessage is recorded when the provider fails a job without saying why.
const FailedMessage = "generation failed"

// NoOutputMessage is recorded when a job succeeds without any output URL.
const NoOutputMessage = "provider returned no output"

// ShutdownMessage is recorded for jobs still polling when the service stops.
const ShutdownMessage = "generation interrupted by shutdown"

// Poller queries a job until it reaches a terminal status. There is no
// attempt cap and no backoff; only context cancellation stops it early.
type Poller struct {
	provider Provider
	interval time.Duration
	metrics  Metrics
	logger   infra.Logger
}

// PollerOptions configures a Poller.
type PollerOptions struct {
	Interval time.Duration
	Metrics  Metrics
	Logger   *infra.Logger
}

func NewPoller(provider Provider, opts PollerOptions) *Poller {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Poller{provider: provider, interval: interval, metrics: metrics, logger: infra.LoggerOrDiscard(opts.Logger)}
}

// Run polls jobID sequentially and passes every observed state to observe.
// It returns the terminal job and true, or false when ctx ended first; in
// that case whoever canceled ctx owns the job's final state.
func (p *Poller) Run(ctx context.Context, jobID string, observe func(domain.GenerationJob)) (domain.GenerationJob, bool) {
	if observe == nil {
		observe = func(domain.GenerationJob) {}
	}
	for attempt := 1; ; attempt++ {
		p.metrics.PollAttempt()
		remote, err := p.provider.GetJob(ctx, jobID)
		if ctx.Err() != nil {
			return domain.GenerationJob{ID: jobID}, false
		}

		var job domain.GenerationJob
		if err != nil {
			p.logger.Warn().Err(err).Str("job_id", jobID).Int("attempt", attempt).Msg("generation: poll failed")
			job = domain.GenerationJob{ID: jobID, Status: domain.JobStatusFailed, ErrorMessage: NormalizeError(err)}
		} else {
			job = interpret(jobID, remote)
		}
		observe(job)
		if job.Status.Terminal() {
			p.logger.Debug().Str("job_id", jobID).Str("status", string(job.Status)).Int("attempts", attempt).Msg("generation: poll finished")
			return job, true
		}

		timer := time.NewTimer(p.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return domain.GenerationJob{ID: jobID}, false
		case <-timer.C:
		}
	}
}

// interpret maps the provider vocabulary onto job states. Only "succeeded"
// and "failed" are terminal; an error field fails the job whatever its status.
func interpret(jobID string, remote *inference.Job) domain.GenerationJob {
	if remote == nil {
		return domain.GenerationJob{ID: jobID, Status: domain.JobStatusFailed, ErrorMessage: "malformed inference response"}
	}
	job := domain.GenerationJob{ID: jobID}
	if msg := strings.TrimSpace(remote.Error); msg != "" {
		job.Status = domain.JobStatusFailed
		job.ErrorMessage = msg
		return job
	}
	switch strings.ToLower(strings.TrimSpace(remote.Status)) {
	case string(domain.JobStatusSucceeded):
		if len(remote.Output) == 0 {
			job.Status = domain.JobStatusFailed
			job.ErrorMessage = NoOutputMessage
			return job
		}
		job.Status = domain.JobStatusSucceeded
		job.OutputURLs = append([]string(nil), remote.Output...)
	case string(domain.JobStatusFailed):
		job.Status = domain.JobStatusFailed
		job.ErrorMessage = FailedMessage
	default:
		job.Status = domain.JobStatusProcessing
	}
	return job
}

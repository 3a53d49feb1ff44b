package generation

import "charagen/internal/domain"

// Metrics receives lifecycle events. Implementations must be safe for
// concurrent use.
type Metrics interface {
	JobSubmitted()
	SubmissionRejected(kind domain.ErrorKind)
	PollAttempt()
	JobFinished(status domain.JobStatus)
}

type nopMetrics struct{}

func (nopMetrics) JobSubmitted() {}
func (nopMetrics) SubmissionRejected(domain.ErrorKind) {}
func (nopMetrics) PollAttempt() {}
func (nopMetrics) JobFinished(domain.JobStatus) {}

package domain

// JobStatus enumerates generation job lifecycle states.
type JobStatus string

const (
	// JobStatusIdle is only held by a session that has never submitted a job.
	JobStatusIdle       JobStatus = "idle"
	JobStatusStarting   JobStatus = "starting"
	JobStatusProcessing JobStatus = "processing"
	JobStatusSucceeded  JobStatus = "succeeded"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCanceled   JobStatus = "canceled"
)

// Terminal reports whether no further transitions may happen from s.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCanceled:
		return true
	default:
		return false
	}
}

// CanTransition reports whether a job in status s may move to next.
// Order is starting -> processing -> (succeeded | failed | canceled).
func (s JobStatus) CanTransition(next JobStatus) bool {
	if s.Terminal() {
		return false
	}
	switch next {
	case JobStatusStarting:
		return false
	case JobStatusProcessing:
		return s == JobStatusStarting || s == JobStatusProcessing
	case JobStatusSucceeded, JobStatusFailed, JobStatusCanceled:
		return true
	default:
		return false
	}
}

// GenerationJob is one remote inference lifecycle identified by the
// provider-assigned id.
type GenerationJob struct {
	ID           string
	Status       JobStatus
	OutputURLs   []string
	ErrorMessage string
}

// OutputURL returns the first output, which is the one shown to users.
func (j GenerationJob) OutputURL() string {
	if len(j.OutputURLs) == 0 {
		return ""
	}
	return j.OutputURLs[0]
}

// GenerationRequest is the caller input for a single generation. Zero values
// mean the field was not provided.
type GenerationRequest struct {
	Prompt               string   `json:"prompt"`
	Width                int      `json:"width,omitempty"`
	Height               int      `json:"height,omitempty"`
	Steps                int      `json:"steps,omitempty"`
	NegativePrompt       string   `json:"negative_prompt,omitempty"`
	Seed                 *int64   `json:"seed,omitempty"`
	StyleAdapterURL      string   `json:"style_adapter_url,omitempty"`
	StyleAdapterStrength *float64 `json:"style_adapter_strength,omitempty"`
}

package domain

import "time"

// UserRole enumerates supported roles.
type UserRole string

const (
	UserRoleUser  UserRole = "user"
	UserRoleAdmin UserRole = "admin"
)

// IsPrivileged reports whether the role bypasses credit consumption.
func (r UserRole) IsPrivileged() bool {
	return r == UserRoleAdmin
}

// GenerationRecord is a persisted terminal job as listed in a user's history.
type GenerationRecord struct {
	JobID        string    `json:"job_id"`
	UserID       string    `json:"user_id"`
	Status       JobStatus `json:"status"`
	OutputURLs   []string  `json:"output_urls"`
	ErrorMessage string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

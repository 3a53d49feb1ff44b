package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestJobStatusTerminal(t *testing.T) {
	for _, s := range []JobStatus{JobStatusSucceeded, JobStatusFailed, JobStatusCanceled} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []JobStatus{JobStatusIdle, JobStatusStarting, JobStatusProcessing, "unknown"} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestJobStatusCanTransition(t *testing.T) {
	cases := []struct {
		from, to JobStatus
		want     bool
	}{
		{JobStatusStarting, JobStatusProcessing, true},
		{JobStatusProcessing, JobStatusProcessing, true},
		{JobStatusStarting, JobStatusSucceeded, true},
		{JobStatusProcessing, JobStatusFailed, true},
		{JobStatusProcessing, JobStatusCanceled, true},
		{JobStatusProcessing, JobStatusStarting, false},
		{JobStatusSucceeded, JobStatusFailed, false},
		{JobStatusCanceled, JobStatusSucceeded, false},
		{JobStatusFailed, JobStatusProcessing, false},
		{JobStatusProcessing, "bogus", false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.want {
			t.Errorf("%s -> %s = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestGenerationJobOutputURL(t *testing.T) {
	if got := (GenerationJob{}).OutputURL(); got != "" {
		t.Fatalf("empty job output = %q", got)
	}
	job := GenerationJob{OutputURLs: []string{"https://cdn.example/a.png", "https://cdn.example/b.png"}}
	if got := job.OutputURL(); got != "https://cdn.example/a.png" {
		t.Fatalf("OutputURL = %q", got)
	}
}

func TestKindOfUnwrapsTaggedErrors(t *testing.T) {
	err := fmt.Errorf("submit: %w", ProviderError("NSFW content detected", ErrProviderFailure))
	if got := KindOf(err); got != KindProvider {
		t.Fatalf("KindOf = %q", got)
	}
	if !errors.Is(err, ErrProviderFailure) {
		t.Fatal("expected sentinel to survive wrapping")
	}
	if got := KindOf(errors.New("plain")); got != "" {
		t.Fatalf("untagged KindOf = %q", got)
	}
}

func TestUserRolePrivileged(t *testing.T) {
	if !UserRoleAdmin.IsPrivileged() || UserRoleUser.IsPrivileged() {
		t.Fatal("only admins bypass credits")
	}
}

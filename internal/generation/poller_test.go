package generation

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"charagen/internal/domain"
	"charagen/internal/providers/inference"
)

func TestPollerObservesEveryState(t *testing.T) {
	provider := newFakeProvider("job-1",
		remote("job-1", "starting"),
		remote("job-1", "processing"),
		remote("job-1", "succeeded", "https://cdn.example/1.png", "https://cdn.example/2.png"),
	)
	metrics := newCountingMetrics()
	p := NewPoller(provider, PollerOptions{Interval: time.Millisecond, Metrics: metrics})

	var seen []domain.JobStatus
	final, completed := p.Run(context.Background(), "job-1", func(j domain.GenerationJob) {
		seen = append(seen, j.Status)
	})

	require.True(t, completed)
	assert.Equal(t, []domain.JobStatus{domain.JobStatusProcessing, domain.JobStatusProcessing, domain.JobStatusSucceeded}, seen)
	assert.Equal(t, []string{"https://cdn.example/1.png", "https://cdn.example/2.png"}, final.OutputURLs)
	assert.Equal(t, "https://cdn.example/1.png", final.OutputURL())
	assert.Equal(t, 3, metrics.polls)
}

func TestPollerStopsOnContext(t *testing.T) {
	provider := newFakeProvider("job-1")
	p := NewPoller(provider, PollerOptions{Interval: 5 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, completed := p.Run(ctx, "job-1", nil)

	assert.False(t, completed)
	assert.GreaterOrEqual(t, provider.pollsSeen(), 1)
}

func TestPollerFailsOnTransportError(t *testing.T) {
	provider := newFakeProvider("job-1", pollResult{err: errors.New("connection reset by peer")})
	p := NewPoller(provider, PollerOptions{Interval: time.Millisecond})

	final, completed := p.Run(context.Background(), "job-1", nil)
	require.True(t, completed)
	assert.Equal(t, domain.JobStatusFailed, final.Status)
	assert.Equal(t, "connection reset by peer", final.ErrorMessage)
	assert.Equal(t, 1, provider.pollsSeen())
}

func TestPollerFailsOnEmptyProviderResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	client, err := inference.NewClient(inference.Options{APIKey: "k", BaseURL: srv.URL, HTTPClient: srv.Client()})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	final, completed := NewPoller(client, PollerOptions{Interval: time.Millisecond}).Run(ctx, "job-1", nil)

	require.True(t, completed)
	assert.Equal(t, domain.JobStatusFailed, final.Status)
	assert.Equal(t, "malformed inference response", final.ErrorMessage)
}

func TestInterpret(t *testing.T) {
	cases := []struct {
		name    string
		remote  *inference.Job
		status  domain.JobStatus
		message string
	}{
		{"nil", nil, domain.JobStatusFailed, "malformed inference response"},
		{"starting", &inference.Job{Status: "starting"}, domain.JobStatusProcessing, ""},
		{"processing", &inference.Job{Status: "processing"}, domain.JobStatusProcessing, ""},
		{"provider canceled keeps polling", &inference.Job{Status: "canceled"}, domain.JobStatusProcessing, ""},
		{"succeeded", &inference.Job{Status: "succeeded", Output: []string{"u"}}, domain.JobStatusSucceeded, ""},
		{"succeeded without output", &inference.Job{Status: "succeeded"}, domain.JobStatusFailed, NoOutputMessage},
		{"failed", &inference.Job{Status: "failed"}, domain.JobStatusFailed, FailedMessage},
		{"error wins", &inference.Job{Status: "succeeded", Output: []string{"u"}, Error: "NSFW content detected"}, domain.JobStatusFailed, "NSFW content detected"},
		{"case insensitive", &inference.Job{Status: "SUCCEEDED", Output: []string{"u"}}, domain.JobStatusSucceeded, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := interpret("job-1", tc.remote)
			assert.Equal(t, "job-1", got.ID)
			assert.Equal(t, tc.status, got.Status)
			assert.Equal(t, tc.message, got.ErrorMessage)
		})
	}
}

package generation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"charagen/internal/domain"
)

func newTestManager(provider *fakeProvider) *Manager {
	return NewManager(context.Background(), Dependencies{
		Gate:      &fakeGate{allow: true},
		Submitter: NewSubmitter(provider, SubmitterOptions{Seed: fixedSeed}),
		Poller:    NewPoller(provider, PollerOptions{Interval: time.Millisecond}),
		Provider:  provider,
	})
}

func TestManagerReusesSessions(t *testing.T) {
	m := newTestManager(newFakeProvider("job-1"))
	defer m.Shutdown()

	a := m.Session("user-1")
	b := m.Session(" user-1 ")
	c := m.Session("user-2")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, 2, m.Len())

	got, ok := m.Lookup("user-2")
	require.True(t, ok)
	assert.Same(t, c, got)
	_, ok = m.Lookup("user-3")
	assert.False(t, ok)
}

func TestManagerPruneKeepsBusySessions(t *testing.T) {
	provider := newFakeProvider("job-1")
	provider.gate = make(chan struct{})
	m := newTestManager(provider)
	defer m.Shutdown()

	busy := m.Session("busy")
	m.Session("quiet")
	_, err := busy.Generate(context.Background(), false, domain.GenerationRequest{Prompt: "p"})
	require.NoError(t, err)

	assert.Equal(t, 1, m.Prune(-time.Minute))
	_, ok := m.Lookup("busy")
	assert.True(t, ok)
	_, ok = m.Lookup("quiet")
	assert.False(t, ok)
}

func TestManagerShutdownStopsPolling(t *testing.T) {
	provider := newFakeProvider("job-1")
	m := newTestManager(provider)

	s := m.Session("user-1")
	_, err := s.Generate(context.Background(), false, domain.GenerationRequest{Prompt: "p"})
	require.NoError(t, err)

	m.Shutdown()

	s.mu.Lock()
	run := s.run
	s.mu.Unlock()
	require.NotNil(t, run)
	select {
	case <-run.done:
	case <-time.After(2 * time.Second):
		t.Fatal("poll loop kept running after shutdown")
	}

	st := s.Snapshot()
	assert.Equal(t, domain.JobStatusFailed, st.Status)
	assert.False(t, st.IsGenerating)
	assert.Equal(t, ShutdownMessage, st.Error)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Wait(ctx))
}

func TestManagerShutdownKeepsUserCancel(t *testing.T) {
	provider := newFakeProvider("job-1")
	m := newTestManager(provider)

	s := m.Session("user-1")
	_, err := s.Generate(context.Background(), false, domain.GenerationRequest{Prompt: "p"})
	require.NoError(t, err)
	s.Cancel(context.Background())
	m.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Wait(ctx))
	st := s.Snapshot()
	assert.Equal(t, domain.JobStatusCanceled, st.Status)
	assert.Empty(t, st.Error)
}

func backdate(s *Session, d time.Duration) {
	s.mu.Lock()
	s.lastUsed = time.Now().Add(-d)
	s.mu.Unlock()
}

func TestManagerSessionMarksUse(t *testing.T) {
	m := newTestManager(newFakeProvider("job-1"))
	defer m.Shutdown()

	s := m.Session("user-1")
	backdate(s, time.Hour)
	assert.Same(t, s, m.Session("user-1"))

	assert.Zero(t, m.Prune(time.Minute))
	_, ok := m.Lookup("user-1")
	assert.True(t, ok)
}

func TestManagerLookupMarksUse(t *testing.T) {
	m := newTestManager(newFakeProvider("job-1"))
	defer m.Shutdown()

	s := m.Session("user-1")
	backdate(s, time.Hour)
	_, ok := m.Lookup("user-1")
	require.True(t, ok)

	assert.Zero(t, m.Prune(time.Minute))
	assert.Equal(t, 1, m.Len())

	backdate(s, time.Hour)
	assert.Equal(t, 1, m.Prune(time.Minute))
}

package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/keepsake/internal/core/domain"
	"github.com/custodia-labs/keepsake/internal/core/ports/driven"
)

// --- Mock implementations for scheduler testing ---

// ingestCall records one scheduled ingest.
type ingestCall struct {
	refs     []domain.SourceRef
	fullSync bool
}

type mockIngest struct {
	mu    sync.Mutex
	calls []ingestCall
}

func (m *mockIngest) run(_ context.Context, refs []domain.SourceRef, fullSync bool) (domain.RunReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, ingestCall{refs: refs, fullSync: fullSync})
	return domain.RunReport{}, nil
}

func (m *mockIngest) snapshot() []ingestCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ingestCall(nil), m.calls...)
}

// watchingSource is a fakeSource that can report changes.
type watchingSource struct {
	*fakeSource
	events chan string
}

func (w *watchingSource) Watch(context.Context) (<-chan string, error) {
	return w.events, nil
}

var _ driven.Watcher = (*watchingSource)(nil)

func startScheduler(t *testing.T, s *Scheduler) {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start(context.Background()) }()
	t.Cleanup(func() {
		require.NoError(t, s.Stop())
		require.NoError(t, <-errCh)
	})
}

func TestScheduler_RunsOnStartup(t *testing.T) {
	ingest := &mockIngest{}
	s := NewScheduler(SchedulerConfig{FullSync: true}, ingest.run, nil)
	startScheduler(t, s)

	require.Eventually(t, func() bool { return len(ingest.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	call := ingest.snapshot()[0]
	assert.Nil(t, call.refs)
	assert.True(t, call.fullSync)
}

func TestScheduler_Interval(t *testing.T) {
	ingest := &mockIngest{}
	s := NewScheduler(SchedulerConfig{Interval: 10 * time.Millisecond}, ingest.run, nil)
	startScheduler(t, s)

	require.Eventually(t, func() bool { return len(ingest.snapshot()) >= 3 }, time.Second, 5*time.Millisecond)
}

func TestScheduler_DebouncesWatchEvents(t *testing.T) {
	ingest := &mockIngest{}
	notes := &watchingSource{fakeSource: newFakeSource("notes"), events: make(chan string)}
	files := &watchingSource{fakeSource: newFakeSource("files"), events: make(chan string)}
	plain := newFakeSource("plain")

	s := NewScheduler(SchedulerConfig{Debounce: 30 * time.Millisecond}, ingest.run,
		[]driven.SourceAdapter{notes, files, plain})
	assert.Equal(t, []string{"files", "notes"}, s.Watching())
	startScheduler(t, s)

	require.Eventually(t, func() bool { return len(ingest.snapshot()) == 1 }, time.Second, 5*time.Millisecond)

	notes.events <- "notes"
	notes.events <- "notes"
	files.events <- "files"

	require.Eventually(t, func() bool { return len(ingest.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	call := ingest.snapshot()[1]
	assert.Equal(t, []domain.SourceRef{"files", "notes"}, call.refs)
	assert.False(t, call.fullSync)
}

func TestScheduler_StopIsIdempotent(t *testing.T) {
	s := NewScheduler(SchedulerConfig{}, (&mockIngest{}).run, nil)
	assert.NoError(t, s.Stop())
}

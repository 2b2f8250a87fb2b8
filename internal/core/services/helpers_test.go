package services

import (
	"context"
	"iter"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/keepsake/internal/adapters/driven/audit/jsonl"
	"github.com/custodia-labs/keepsake/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/keepsake/internal/core/domain"
	"github.com/custodia-labs/keepsake/internal/core/ports/driven"
	"github.com/custodia-labs/keepsake/internal/resilience"
)

// testEnv bundles a temporary store and audit log.
type testEnv struct {
	store *sqlite.Store
	audit *jsonl.Log
	dir   string
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	store, err := sqlite.NewStore(filepath.Join(dir, "data"), sqlite.Options{WriteTimeout: 2 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	audit, err := jsonl.Open(filepath.Join(dir, "audit.jsonl"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = audit.Close() })

	return &testEnv{store: store, audit: audit, dir: dir}
}

func (e *testEnv) stores() IngestStores {
	return IngestStores{
		Documents:     e.store,
		TextIndex:     e.store.TextIndex(),
		Vectors:       e.store.Vectors(),
		SyncStates:    e.store.SyncStateStore(),
		Runs:          e.store.RunStore(),
		Relationships: e.store.Relationships(),
	}
}

// fastRetry retries without waiting.
func fastRetry(attempts int) resilience.RetryPolicy {
	p := resilience.DefaultRetryPolicy()
	p.MaxAttempts = attempts
	p.BaseDelay = time.Microsecond
	p.MaxDelay = time.Microsecond
	return p
}

func strPtr(s string) *string { return &s }

func note(id, title, body string) domain.RawRecord {
	return domain.RawRecord{
		Kind:     domain.KindNote,
		SourceID: id,
		Title:    title,
		Body:     strPtr(body),
	}
}

// fakeSource is a SourceAdapter backed by a fixed record list.
type fakeSource struct {
	name  string
	kinds []domain.Kind

	mu      sync.Mutex
	records []domain.RawRecord

	// errAt yields the error in place of the record at that index.
	errAt map[int]error

	// failAfter aborts the stream with failErr after that many records.
	failAfter int
	failErr   error

	calls int
	since []*time.Time
}

var _ driven.SourceAdapter = (*fakeSource)(nil)

func newFakeSource(name string, records ...domain.RawRecord) *fakeSource {
	return &fakeSource{name: name, kinds: []domain.Kind{domain.KindNote}, records: records, failAfter: -1}
}

func (f *fakeSource) Name() string         { return f.name }
func (f *fakeSource) Kinds() []domain.Kind { return f.kinds }

func (f *fakeSource) set(records ...domain.RawRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = records
}

func (f *fakeSource) Fetch(ctx context.Context, since *time.Time, _ bool) iter.Seq2[domain.RawRecord, error] {
	f.mu.Lock()
	f.calls++
	f.since = append(f.since, since)
	records := append([]domain.RawRecord(nil), f.records...)
	f.mu.Unlock()

	return func(yield func(domain.RawRecord, error) bool) {
		for i, rec := range records {
			if f.failAfter >= 0 && i == f.failAfter {
				yield(domain.RawRecord{}, f.failErr)
				return
			}
			if err, ok := f.errAt[i]; ok {
				if !yield(domain.RawRecord{}, err) {
					return
				}
				continue
			}
			if !yield(rec, nil) {
				return
			}
		}
		if f.failAfter >= 0 && f.failAfter >= len(records) {
			yield(domain.RawRecord{}, f.failErr)
		}
	}
}

// mockEmbedder is a testify mock of driven.EmbeddingProvider.
type mockEmbedder struct {
	mock.Mock
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	vec, _ := args.Get(0).([]float32)
	return vec, args.Error(1)
}

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/keepsake/internal/core/domain"
	"github.com/custodia-labs/keepsake/internal/core/ports/driven"
	"github.com/custodia-labs/keepsake/internal/logger"
	"github.com/custodia-labs/keepsake/internal/resilience"
)

// IngestStores groups the persistence ports the coordinator writes to.
type IngestStores struct {
	Documents     driven.DocumentStore
	TextIndex     driven.TextIndex
	Vectors       driven.VectorStore
	SyncStates    driven.SyncStateStore
	Runs          driven.RunStore
	Relationships driven.RelationshipStore
}

// IngestCoordinator runs source adapters into the document store.
// Sources run strictly one after another under a single write lease; a
// failing source is recorded in the report and never stops the others.
type IngestCoordinator struct {
	stores   IngestStores
	embedder driven.EmbeddingProvider
	backup   driven.BackupSink
	executor *resilience.Executor
	policy   resilience.RetryPolicy
	linkers  []Linker
	now      func() time.Time
}

// IngestOption configures an IngestCoordinator.
type IngestOption func(*IngestCoordinator)

// WithEmbedder embeds new and changed documents during ingestion.
func WithEmbedder(e driven.EmbeddingProvider) IngestOption {
	return func(c *IngestCoordinator) { c.embedder = e }
}

// WithBackup snapshots the store before the first write of every run.
func WithBackup(b driven.BackupSink) IngestOption {
	return func(c *IngestCoordinator) { c.backup = b }
}

// WithLinkers replaces the post-run linking passes.
func WithLinkers(l ...Linker) IngestOption {
	return func(c *IngestCoordinator) { c.linkers = l }
}

// WithUpsertRetry sets the retry policy wrapped around each upsert.
func WithUpsertRetry(p resilience.RetryPolicy) IngestOption {
	return func(c *IngestCoordinator) { c.policy = p }
}

// WithIngestClock overrides the clock used for run timestamps.
func WithIngestClock(now func() time.Time) IngestOption {
	return func(c *IngestCoordinator) { c.now = now }
}

// NewIngestCoordinator creates a coordinator.
func NewIngestCoordinator(
	stores IngestStores, executor *resilience.Executor, opts ...IngestOption,
) *IngestCoordinator {
	c := &IngestCoordinator{
		stores:   stores,
		executor: executor,
		policy:   resilience.DefaultRetryPolicy(),
		linkers:  DefaultLinkers(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	if c.executor == nil {
		c.executor = resilience.NewExecutor(resilience.DefaultBreakerConfig())
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunIngest ingests every source in order and returns the run report.
// Only coordinator faults are returned as errors: a lease timeout or a
// failed snapshot. Source failures are reported in the returned stats.
func (c *IngestCoordinator) RunIngest(
	ctx context.Context, sources []driven.SourceAdapter, fullSync bool,
) (domain.RunReport, error) {
	logger.Section("Ingest Run")
	defer logger.Timed("ingest run")()

	report := domain.RunReport{
		RunID:     uuid.New().String(),
		FullSync:  fullSync,
		StartedAt: c.now(),
	}

	// Step 1: Take the single-writer lease for the whole run
	ctx, release, err := c.stores.Documents.AcquireWrite(ctx)
	if err != nil {
		return report, fmt.Errorf("acquire store: %w", err)
	}
	defer release()

	// Step 2: Snapshot before the first write
	if c.backup != nil {
		if err := c.stores.Documents.Checkpoint(ctx); err != nil {
			return report, fmt.Errorf("checkpoint before snapshot: %w", err)
		}
		if err := c.backup.Snapshot(ctx, c.stores.Documents.Path()); err != nil {
			return report, fmt.Errorf("snapshot: %w", err)
		}
		logger.Debug("Snapshot taken of %s", c.stores.Documents.Path())
	}

	// Step 3: Sources, strictly sequential
	for _, src := range sources {
		stats := c.runSource(ctx, src, fullSync)
		report.Sources = append(report.Sources, stats)
		if stats.Failed() {
			logger.Warn("Source %s failed (%s): %s", stats.Source, stats.ErrorClass, stats.Error)
		} else {
			logger.Info("Source %s: %d processed, %d created, %d updated, %d tombstoned",
				stats.Source, stats.Processed, stats.Created, stats.Updated, stats.Tombstoned)
		}
	}

	// Step 4: Linking passes
	for _, l := range c.linkers {
		n, err := l.Link(ctx, c.stores.Documents, c.stores.Relationships)
		if err != nil {
			logger.Warn("Linker %s failed: %v", l.Name(), err)
		}
		report.Linked += n
	}

	// Step 5: Text index consistency
	if c.stores.TextIndex != nil {
		rebuilt, err := c.stores.TextIndex.EnsureTextIndex(ctx)
		if err != nil {
			logger.Warn("Text index check failed: %v", err)
		}
		report.IndexRebuilt = rebuilt
	}

	report.FinishedAt = c.now()
	report.Duration = report.FinishedAt.Sub(report.StartedAt)

	// Step 6: Persist the run for observability
	if c.stores.Runs != nil {
		if err := c.stores.Runs.Save(ctx, report); err != nil {
			logger.Warn("Saving run report failed: %v", err)
		}
	}

	return report, nil
}

// runSource ingests one source behind its circuit breaker.
func (c *IngestCoordinator) runSource(ctx context.Context, src driven.SourceAdapter, fullSync bool) domain.SourceStats {
	stats := domain.SourceStats{Source: src.Name()}
	start := c.now()

	err := c.executor.Breaker("ingest:"+src.Name()).Execute(ctx, func(ctx context.Context) error {
		return c.ingestSource(ctx, src, fullSync, &stats)
	})
	stats.Duration = c.now().Sub(start)

	if err != nil {
		stats.Error = err.Error()
		stats.ErrorClass = resilience.Classify(err).Class
	}
	return stats
}

func (c *IngestCoordinator) ingestSource(
	ctx context.Context, src driven.SourceAdapter, fullSync bool, stats *domain.SourceStats,
) error {
	name := src.Name()
	startedAt := c.now()

	var since *time.Time
	if !fullSync && c.stores.SyncStates != nil {
		state, err := c.stores.SyncStates.Get(ctx, name)
		switch {
		case err == nil:
			since = &state.LastSync
		case !errors.Is(err, domain.ErrNotFound):
			return fmt.Errorf("load sync state: %w", err)
		}
	}
	logger.Debug("Source %s: since=%v fullSync=%t", name, since, fullSync)

	seen := make(map[string]struct{})
	for rec, err := range src.Fetch(ctx, since, fullSync) {
		if err != nil {
			if errors.Is(err, domain.ErrValidation) {
				logger.Debug("Source %s: skipping record: %v", name, err)
				stats.Errors++
				continue
			}
			return fmt.Errorf("fetch: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		stats.Processed++
		if rec.SourceID != "" {
			seen[domain.DocumentID(name, rec.SourceID)] = struct{}{}
		}

		in := domain.UpsertInput{
			Kind:          rec.Kind,
			SourceSystem:  name,
			SourceID:      rec.SourceID,
			Title:         rec.Title,
			Body:          rec.Body,
			SourceLocator: rec.SourceLocator,
			Attributes:    rec.Attributes,
			Extension:     rec.Extension,
		}

		var res domain.UpsertResult
		_, err := resilience.Retry(ctx, c.policy, func(ctx context.Context) error {
			var uerr error
			res, uerr = c.stores.Documents.Upsert(ctx, in)
			return uerr
		})
		if err != nil {
			if errors.Is(err, domain.ErrValidation) {
				logger.Debug("Source %s: record %q rejected: %v", name, rec.SourceID, err)
				stats.Errors++
				continue
			}
			return fmt.Errorf("upsert %q: %w", rec.SourceID, err)
		}

		switch {
		case res.Created:
			stats.Created++
		case res.Changed:
			stats.Updated++
		default:
			stats.Unchanged++
		}

		if res.Created || res.Changed {
			c.embed(ctx, res.ID, rec)
		}
	}

	if fullSync {
		for _, kind := range src.Kinds() {
			n, err := c.stores.Documents.MarkAbsent(ctx, kind, name, seen)
			if err != nil {
				return fmt.Errorf("mark absent %s: %w", kind, err)
			}
			stats.Tombstoned += n
		}
	}

	if c.stores.SyncStates != nil {
		if err := c.stores.SyncStates.Save(ctx, domain.SyncState{SourceSystem: name, LastSync: startedAt}); err != nil {
			return fmt.Errorf("save sync state: %w", err)
		}
	}
	return nil
}

// embed stores a vector for a document. Failures are logged only.
func (c *IngestCoordinator) embed(ctx context.Context, id string, rec domain.RawRecord) {
	if c.embedder == nil || c.stores.Vectors == nil {
		return
	}
	text := rec.Title
	if rec.Body != nil {
		text += "\n" + *rec.Body
	}
	vec, err := c.embedder.Embed(ctx, text)
	if err != nil {
		logger.Debug("Embedding %s failed: %v", id, err)
		return
	}
	if err := c.stores.Vectors.Save(ctx, id, vec); err != nil {
		logger.Debug("Saving vector %s failed: %v", id, err)
	}
}

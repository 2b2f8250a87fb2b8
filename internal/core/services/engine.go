package services

import (
	"context"
	"fmt"

	"github.com/custodia-labs/keepsake/internal/core/domain"
	"github.com/custodia-labs/keepsake/internal/core/ports/driven"
	"github.com/custodia-labs/keepsake/internal/core/ports/driving"
	"github.com/custodia-labs/keepsake/internal/logger"
	"github.com/custodia-labs/keepsake/internal/resilience"
)

// Ensure Engine implements the interface.
var _ driving.Engine = (*Engine)(nil)

// EngineDeps are the adapters the engine is built from.
type EngineDeps struct {
	Stores  IngestStores
	Plans   driven.PlanStore
	Audit   driven.AuditLog
	Sources []driven.SourceAdapter

	// Optional collaborators (can be nil).
	Embedder driven.EmbeddingProvider
	Backup   driven.BackupSink
	Cache    driven.Cache
}

// EngineConfig tunes the engine's services.
type EngineConfig struct {
	Search       SearchConfig
	Synonyms     map[string][]string
	MaxVariants  int
	Orchestrator OrchestratorConfig
	Breaker      resilience.BreakerConfig
	IngestRetry  resilience.RetryPolicy
}

// DefaultEngineConfig returns the default configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Search:       DefaultSearchConfig(),
		Synonyms:     DefaultSynonyms(),
		MaxVariants:  DefaultMaxVariants,
		Orchestrator: DefaultOrchestratorConfig(),
		Breaker:      resilience.DefaultBreakerConfig(),
		IngestRetry:  resilience.DefaultRetryPolicy(),
	}
}

// Engine wires the ingest, search and orchestration services together.
type Engine struct {
	docs     driven.DocumentStore
	runs     driven.RunStore
	cache    driven.Cache
	sources  []driven.SourceAdapter
	executor *resilience.Executor

	ingest       *IngestCoordinator
	search       *SearchService
	tools        *ToolRegistry
	planner      *Planner
	orchestrator *Orchestrator
}

// NewEngine builds an engine. Sources keep their order; Ingest with no refs
// runs them in that order.
func NewEngine(deps EngineDeps, cfg EngineConfig) (*Engine, error) {
	if deps.Stores.Documents == nil || deps.Plans == nil || deps.Audit == nil {
		return nil, fmt.Errorf("%w: engine requires a document store, plan store and audit log",
			domain.ErrConfiguration)
	}

	seen := make(map[string]bool, len(deps.Sources))
	for _, src := range deps.Sources {
		if seen[src.Name()] {
			return nil, fmt.Errorf("%w: duplicate source %q", domain.ErrConfiguration, src.Name())
		}
		seen[src.Name()] = true
	}

	executor := resilience.NewExecutor(cfg.Breaker)

	e := &Engine{
		docs:     deps.Stores.Documents,
		runs:     deps.Stores.Runs,
		cache:    deps.Cache,
		sources:  deps.Sources,
		executor: executor,
	}

	ingestOpts := []IngestOption{WithEmbedder(deps.Embedder), WithBackup(deps.Backup)}
	if cfg.IngestRetry.MaxAttempts > 0 {
		ingestOpts = append(ingestOpts, WithUpsertRetry(cfg.IngestRetry))
	}
	e.ingest = NewIngestCoordinator(deps.Stores, executor, ingestOpts...)

	var expander *QueryExpander
	if cfg.Search.Expand {
		synonyms := cfg.Synonyms
		if synonyms == nil {
			synonyms = DefaultSynonyms()
		}
		expander = NewQueryExpander(synonyms, cfg.MaxVariants)
	}
	e.search = NewSearchService(
		deps.Stores.Documents, deps.Stores.TextIndex, deps.Stores.Vectors,
		deps.Embedder, expander, deps.Cache, cfg.Search,
	)

	e.tools = NewToolRegistry(BuiltinTools(e.Search, e.Ingest, deps.Stores.Documents, deps.Stores.Relationships)...)
	e.planner = NewPlanner(e.tools, deps.Plans, deps.Audit)
	e.orchestrator = NewOrchestrator(e.tools, deps.Plans, deps.Audit, executor, cfg.Orchestrator)

	return e, nil
}

// ToolRegistry returns the registry so callers can register extra tools.
func (e *Engine) ToolRegistry() *ToolRegistry {
	return e.tools
}

// Breakers reports the state of every circuit breaker.
func (e *Engine) Breakers() map[string]resilience.BreakerState {
	return e.executor.Breakers().States()
}

// Ingest runs the named sources, or all of them when refs is empty.
func (e *Engine) Ingest(ctx context.Context, refs []domain.SourceRef, fullSync bool) (domain.RunReport, error) {
	sources, err := e.resolve(refs)
	if err != nil {
		return domain.RunReport{}, err
	}

	report, err := e.ingest.RunIngest(ctx, sources, fullSync)
	e.purgeCache()
	return report, err
}

func (e *Engine) resolve(refs []domain.SourceRef) ([]driven.SourceAdapter, error) {
	if len(refs) == 0 {
		return e.sources, nil
	}
	byName := make(map[string]driven.SourceAdapter, len(e.sources))
	for _, src := range e.sources {
		byName[src.Name()] = src
	}
	out := make([]driven.SourceAdapter, 0, len(refs))
	for _, ref := range refs {
		src, ok := byName[string(ref)]
		if !ok {
			return nil, fmt.Errorf("%w: %q", domain.ErrUnknownSource, ref)
		}
		out = append(out, src)
	}
	return out, nil
}

// Sources lists the registered source names in run order.
func (e *Engine) Sources() []string {
	names := make([]string, len(e.sources))
	for i, src := range e.sources {
		names[i] = src.Name()
	}
	return names
}

// SourceAdapters returns the registered adapters in run order.
func (e *Engine) SourceAdapters() []driven.SourceAdapter {
	return e.sources
}

// Runs returns recent ingestion reports.
func (e *Engine) Runs(ctx context.Context, limit int) ([]domain.RunReport, error) {
	if e.runs == nil {
		return nil, nil
	}
	return e.runs.List(ctx, limit)
}

// Search performs a hybrid search.
func (e *Engine) Search(
	ctx context.Context, query string, limit int, filters domain.Filters,
) (domain.SearchResponse, error) {
	return e.search.Search(ctx, query, limit, filters)
}

// CreatePlan stores a draft plan.
func (e *Engine) CreatePlan(ctx context.Context, intent domain.Intent) (*domain.Plan, error) {
	return e.planner.CreatePlan(ctx, intent)
}

// ConfirmAndExecute runs a plan. Search results are invalidated after any
// plan that could change stored data.
func (e *Engine) ConfirmAndExecute(ctx context.Context, planID, hash string) (domain.ExecutionResult, error) {
	result, err := e.orchestrator.ConfirmAndExecute(ctx, planID, hash)
	if len(result.Steps) > 0 {
		if plan, gerr := e.orchestrator.GetPlan(ctx, planID); gerr == nil && plan.RequiresConfirmation() {
			e.purgeCache()
		}
	}
	return result, err
}

// CancelPlan cancels a plan.
func (e *Engine) CancelPlan(ctx context.Context, planID string) error {
	return e.orchestrator.Cancel(ctx, planID)
}

// GetPlan returns a stored plan.
func (e *Engine) GetPlan(ctx context.Context, planID string) (*domain.Plan, error) {
	return e.orchestrator.GetPlan(ctx, planID)
}

// ListPlans returns recent plans.
func (e *Engine) ListPlans(ctx context.Context, limit int) ([]domain.Plan, error) {
	return e.orchestrator.ListPlans(ctx, limit)
}

// GetAuditTrail returns the audit entries of a plan lifecycle.
func (e *Engine) GetAuditTrail(ctx context.Context, correlationID string) ([]domain.AuditEntry, error) {
	return e.orchestrator.AuditTrail(ctx, correlationID)
}

// Tools describes the registered tools.
func (e *Engine) Tools() []domain.ToolInfo {
	tools := e.tools.List()
	out := make([]domain.ToolInfo, len(tools))
	for i, t := range tools {
		out[i] = domain.ToolInfo{Name: t.Name(), Description: t.Description(), Risk: t.Risk()}
	}
	return out
}

// Migrate brings the store schema up to date.
func (e *Engine) Migrate(ctx context.Context) error {
	return e.docs.Migrate(ctx)
}

// Stats summarises store contents.
func (e *Engine) Stats(ctx context.Context) (domain.StoreStats, error) {
	return e.docs.Stats(ctx)
}

func (e *Engine) purgeCache() {
	if e.cache != nil {
		e.cache.Purge()
		logger.Debug("Search cache purged")
	}
}

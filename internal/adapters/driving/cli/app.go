package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/custodia-labs/keepsake/internal/adapters/driven/audit/jsonl"
	backupfile "github.com/custodia-labs/keepsake/internal/adapters/driven/backup/file"
	"github.com/custodia-labs/keepsake/internal/adapters/driven/config/file"
	"github.com/custodia-labs/keepsake/internal/adapters/driven/embedding/ollama"
	"github.com/custodia-labs/keepsake/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/keepsake/internal/cache"
	"github.com/custodia-labs/keepsake/internal/connectors"
	"github.com/custodia-labs/keepsake/internal/core/ports/driven"
	"github.com/custodia-labs/keepsake/internal/core/ports/driving"
	"github.com/custodia-labs/keepsake/internal/core/services"
	"github.com/custodia-labs/keepsake/internal/logger"
	"github.com/custodia-labs/keepsake/internal/resilience"
)

// App holds the wired engine and the resources it owns.
type App struct {
	Engine   driving.Engine
	Sources  []driven.SourceAdapter
	Settings file.Settings

	closers []io.Closer
}

// Close releases every resource the app opened, newest first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// OpenApp loads the config file at configPath and wires the engine:
// store, audit log, caches, embedder, backup sink and sources.
func OpenApp(configPath string) (_ *App, err error) {
	settings, err := file.LoadSettings(configPath)
	if err != nil {
		return nil, err
	}

	app := &App{Settings: settings}
	defer func() {
		if err != nil {
			app.Close() //nolint:errcheck
		}
	}()

	store, err := sqlite.NewStore(settings.DataDir, sqlite.Options{
		WriteTimeout: settings.Store.WriteTimeout.Std(),
		BusyTimeout:  settings.Store.BusyTimeout.Std(),
	})
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	app.closers = append(app.closers, store)

	audit, err := jsonl.Open(settings.AuditPath)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, audit)

	deps := services.EngineDeps{
		Stores: services.IngestStores{
			Documents:     store,
			TextIndex:     store.TextIndex(),
			Vectors:       store.Vectors(),
			SyncStates:    store.SyncStateStore(),
			Runs:          store.RunStore(),
			Relationships: store.Relationships(),
		},
		Plans: store.PlanStore(),
		Audit: audit,
	}

	// Search results and embeddings live in separate caches: the engine
	// purges results after every write, embeddings stay valid.
	if settings.Cache.Enabled {
		deps.Cache = cache.New(cache.Config{TTL: settings.Cache.TTL.Std(), Capacity: settings.Cache.Capacity})
	}

	if settings.Embedding.Enabled {
		provider := ollama.New(ollama.Config{
			BaseURL:           settings.Embedding.BaseURL,
			Model:             settings.Embedding.Model,
			Timeout:           settings.Embedding.Timeout.Std(),
			RequestsPerSecond: settings.Embedding.RequestsPerSecond,
			Burst:             settings.Embedding.Burst,
		})
		deps.Embedder = provider
		if settings.Cache.Enabled {
			deps.Embedder = cache.NewCachingEmbedder(provider, cache.New(cache.Config{}))
		}
		logger.Debug("Embedding enabled with model %s", provider.Model())
	}

	if settings.Backup.Enabled {
		deps.Backup = backupfile.New(settings.Backup.Dir, settings.Backup.Keep)
	}

	sources, err := connectors.NewFactory().BuildAll(settings.SourceConfigs())
	if err != nil {
		return nil, err
	}
	for _, src := range sources {
		if c, ok := src.(io.Closer); ok {
			app.closers = append(app.closers, c)
		}
	}
	deps.Sources = sources
	app.Sources = sources

	cfg, err := engineConfig(settings)
	if err != nil {
		return nil, err
	}

	engine, err := services.NewEngine(deps, cfg)
	if err != nil {
		return nil, err
	}
	app.Engine = engine
	return app, nil
}

// engineConfig converts settings. Zero values keep the engine defaults.
func engineConfig(settings file.Settings) (services.EngineConfig, error) {
	cfg := services.DefaultEngineConfig()

	cfg.Search.Expand = settings.Search.Expand
	if settings.Search.LexicalWeight > 0 || settings.Search.SemanticWeight > 0 {
		cfg.Search.LexicalWeight = settings.Search.LexicalWeight
		cfg.Search.SemanticWeight = settings.Search.SemanticWeight
	}
	if settings.Search.MaxVariants > 0 {
		cfg.MaxVariants = settings.Search.MaxVariants
	}
	if settings.Search.Expand && settings.SynonymsPath != "" {
		table, err := file.NewSynonymStore(settings.SynonymsPath, services.DefaultSynonyms()).Load()
		if err != nil {
			return cfg, err
		}
		cfg.Synonyms = table
	}

	if w := settings.Orchestrator.ConfirmationWindow.Std(); w > 0 {
		cfg.Orchestrator.ConfirmationWindow = w
	}

	cfg.Breaker = resilience.BreakerConfig{
		FailureThreshold: settings.Breaker.FailureThreshold,
		SuccessThreshold: settings.Breaker.SuccessThreshold,
		RecoveryTimeout:  settings.Breaker.RecoveryTimeout.Std(),
	}

	if settings.Retry.MaxAttempts > 0 {
		retry := resilience.DefaultRetryPolicy()
		retry.MaxAttempts = settings.Retry.MaxAttempts
		if d := settings.Retry.BaseDelay.Std(); d > 0 {
			retry.BaseDelay = d
		}
		if d := settings.Retry.MaxDelay.Std(); d > 0 {
			retry.MaxDelay = d
		}
		if m := settings.Retry.BackoffMultiplier; m > 0 {
			retry.BackoffMultiplier = m
		}
		cfg.IngestRetry = retry
		cfg.Orchestrator.StepRetry = retry
	}
	return cfg, nil
}

package connectors

import (
	"fmt"
	"sort"

	"github.com/custodia-labs/keepsake/internal/connectors/filesystem"
	"github.com/custodia-labs/keepsake/internal/connectors/jsonl"
	"github.com/custodia-labs/keepsake/internal/core/domain"
	"github.com/custodia-labs/keepsake/internal/core/ports/driven"
)

// Builder creates a source adapter from its configuration.
type Builder func(cfg domain.SourceConfig) (driven.SourceAdapter, error)

// Factory maps source types to builders.
type Factory struct {
	builders map[string]Builder
}

// NewFactory creates a factory with the built-in source types registered.
func NewFactory() *Factory {
	f := &Factory{builders: make(map[string]Builder)}
	f.Register(filesystem.Type, func(cfg domain.SourceConfig) (driven.SourceAdapter, error) {
		return filesystem.New(cfg.Name, cfg.Path, nil), nil
	})
	f.Register(jsonl.Type, func(cfg domain.SourceConfig) (driven.SourceAdapter, error) {
		return jsonl.New(cfg.Name, cfg.Path, cfg.Kinds...), nil
	})
	return f
}

// Register adds or replaces the builder for a source type.
func (f *Factory) Register(sourceType string, builder Builder) {
	f.builders[sourceType] = builder
}

// SupportedTypes returns the registered source types, sorted.
func (f *Factory) SupportedTypes() []string {
	types := make([]string, 0, len(f.builders))
	for t := range f.builders {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Build creates one adapter.
func (f *Factory) Build(cfg domain.SourceConfig) (driven.SourceAdapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	builder, ok := f.builders[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("%w: source %q has unsupported type %q", domain.ErrConfiguration, cfg.Name, cfg.Type)
	}
	return builder(cfg)
}

// BuildAll creates every configured adapter, failing on the first error.
func (f *Factory) BuildAll(cfgs []domain.SourceConfig) ([]driven.SourceAdapter, error) {
	adapters := make([]driven.SourceAdapter, 0, len(cfgs))
	for _, cfg := range cfgs {
		a, err := f.Build(cfg)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}
	return adapters, nil
}

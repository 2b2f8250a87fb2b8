package mcp

import (
	"github.com/custodia-labs/keepsake/internal/core/ports/driving"
)

// Ports aggregates the driving ports the MCP server exposes.
type Ports struct {
	// Search provides search capabilities.
	Search driving.SearchService

	// Ingest lists sources and runs. Optional.
	Ingest driving.IngestService

	// Plans drives the plan lifecycle. Optional; without it the plan
	// tools and resources are not registered.
	Plans driving.PlanService
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p.Search == nil {
		return ErrMissingSearchService
	}
	return nil
}

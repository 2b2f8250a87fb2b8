package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	// uriScheme is the custom URI scheme for Keepsake resources.
	uriScheme = "keepsake://"

	recentRuns = 10
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	if s.ports.Ingest != nil {
		s.server.AddResource(&mcp.Resource{
			URI:         uriScheme + "sources",
			Name:        "sources",
			Description: "Configured sources and the most recent ingestion runs",
			MIMEType:    "application/json",
		}, s.handleSourcesResource)
	}

	if s.ports.Plans != nil {
		s.server.AddResourceTemplate(&mcp.ResourceTemplate{
			URITemplate: uriScheme + "plans/{planId}",
			Name:        "plan",
			Description: "A stored plan with its steps, status and last result",
			MIMEType:    "application/json",
		}, s.handlePlanResource)

		s.server.AddResourceTemplate(&mcp.ResourceTemplate{
			URITemplate: uriScheme + "audit/{correlationId}",
			Name:        "audit-trail",
			Description: "Audit entries recorded for one plan lifecycle",
			MIMEType:    "application/json",
		}, s.handleAuditResource)
	}
}

// handleSourcesResource returns source names and recent runs.
func (s *Server) handleSourcesResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	runs, err := s.ports.Ingest.Runs(ctx, recentRuns)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	return jsonResource(req.Params.URI, map[string]any{
		"sources": s.ports.Ingest.Sources(),
		"runs":    runs,
	})
}

// handlePlanResource returns a single plan.
func (s *Server) handlePlanResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	planID := extractID(req.Params.URI, "plans/")
	if planID == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	plan, err := s.ports.Plans.GetPlan(ctx, planID)
	if err != nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	return jsonResource(req.Params.URI, plan)
}

// handleAuditResource returns the audit trail of a correlation id.
func (s *Server) handleAuditResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	correlationID := extractID(req.Params.URI, "audit/")
	if correlationID == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	entries, err := s.ports.Plans.GetAuditTrail(ctx, correlationID)
	if err != nil {
		return nil, fmt.Errorf("reading audit trail: %w", err)
	}
	if len(entries) == 0 {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	return jsonResource(req.Params.URI, entries)
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling resource: %w", err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// extractID returns the single path segment after prefix in a
// keepsake:// URI, or "" if the URI does not have that shape.
func extractID(uri, prefix string) string {
	rest, ok := strings.CutPrefix(uri, uriScheme+prefix)
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return ""
	}
	return rest
}

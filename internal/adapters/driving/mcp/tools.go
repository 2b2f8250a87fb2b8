package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/keepsake/internal/core/domain"
)

const (
	defaultLimit  = 10
	snippetLength = 300
)

// SearchInput is the input schema for the search tool.
type SearchInput struct {
	Query          string   `json:"query" jsonschema:"the search query to find documents"`
	Limit          int      `json:"limit,omitempty" jsonschema:"maximum number of results to return (default 10)"`
	Kinds          []string `json:"kinds,omitempty" jsonschema:"restrict results to these kinds (email, message, event, reminder, note, file, contact)"`
	Sources        []string `json:"sources,omitempty" jsonschema:"restrict results to these source names"`
	IncludeDeleted bool     `json:"include_deleted,omitempty" jsonschema:"include tombstoned documents"`
}

// SearchOutput is the output schema for the search tool.
type SearchOutput struct {
	Results  []SearchResultOutput `json:"results"`
	Count    int                  `json:"count"`
	Warnings []string             `json:"warnings,omitempty"`
	Variants []string             `json:"variants,omitempty"`
}

// SearchResultOutput represents a single search result.
type SearchResultOutput struct {
	DocumentID    string   `json:"document_id"`
	Kind          string   `json:"kind"`
	Title         string   `json:"title"`
	Source        string   `json:"source"`
	Locator       string   `json:"locator,omitempty"`
	Score         float64  `json:"score"`
	LexicalScore  float64  `json:"lexical_score"`
	SemanticScore float64  `json:"semantic_score"`
	Deleted       bool     `json:"deleted,omitempty"`
	Highlights    []string `json:"highlights,omitempty"`
	Content       string   `json:"content,omitempty"`
}

// IngestInput is the input schema for the ingest tool.
type IngestInput struct {
	Sources  []string `json:"sources,omitempty" jsonschema:"source names to run (default: all)"`
	FullSync bool     `json:"full_sync,omitempty" jsonschema:"re-read everything and tombstone records no longer present"`
}

// IngestOutput summarises an ingestion run.
type IngestOutput struct {
	RunID   string               `json:"run_id"`
	Sources []domain.SourceStats `json:"sources,omitempty"`
	Failed  []string             `json:"failed,omitempty"`
}

// OperationInput is one requested tool call.
type OperationInput struct {
	Tool      string         `json:"tool" jsonschema:"name of a registered tool, see list_tools"`
	Arguments map[string]any `json:"arguments,omitempty" jsonschema:"tool arguments"`
	RiskLevel string         `json:"risk_level,omitempty" jsonschema:"optional risk override: read-only, mutating or destructive; can only raise the tool's risk"`
}

// CreatePlanInput is the input schema for the create_plan tool.
type CreatePlanInput struct {
	Description string           `json:"description" jsonschema:"what the plan is for"`
	Operations  []OperationInput `json:"operations" jsonschema:"ordered tool calls"`
}

// PlanOutput describes a stored plan.
type PlanOutput struct {
	PlanID               string        `json:"plan_id"`
	CorrelationID        string        `json:"correlation_id"`
	Status               string        `json:"status"`
	MaxRisk              string        `json:"max_risk"`
	RequiresConfirmation bool          `json:"requires_confirmation"`
	ConfirmationHash     string        `json:"confirmation_hash"`
	Steps                []domain.Step `json:"steps"`
}

// ConfirmPlanInput is the input schema for the confirm_plan tool.
type ConfirmPlanInput struct {
	PlanID           string `json:"plan_id"`
	ConfirmationHash string `json:"confirmation_hash,omitempty" jsonschema:"hash returned by create_plan; required unless the plan is read-only"`
}

// ExecutionOutput reports a plan execution.
type ExecutionOutput struct {
	domain.ExecutionResult
	Error string `json:"error,omitempty"`
}

// PlanIDInput identifies a plan.
type PlanIDInput struct {
	PlanID string `json:"plan_id"`
}

// ListToolsOutput lists the tools plans may use.
type ListToolsOutput struct {
	Tools []domain.ToolInfo `json:"tools"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search",
		Description: "Hybrid keyword and semantic search across stored documents",
	}, s.handleSearch)

	if s.ports.Ingest != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "ingest",
			Description: "Run configured sources into the store",
		}, s.handleIngest)
	}

	if s.ports.Plans == nil {
		return
	}
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_tools",
		Description: "List the tools a plan may use and their risk levels",
	}, s.handleListTools)
	mcp.AddTool(s.server, &mcp.Tool{
		Name: "create_plan",
		Description: "Create a draft plan of tool calls. Plans that change data must be " +
			"confirmed by the user with the returned confirmation_hash",
	}, s.handleCreatePlan)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "confirm_plan",
		Description: "Confirm and execute a draft plan",
	}, s.handleConfirmPlan)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "cancel_plan",
		Description: "Cancel a draft plan, or stop an executing one between steps",
	}, s.handleCancelPlan)
}

// handleSearch handles the search tool invocation.
func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	filters := domain.Filters{
		SourceSystems:  input.Sources,
		IncludeDeleted: input.IncludeDeleted,
	}
	for _, k := range input.Kinds {
		filters.Kinds = append(filters.Kinds, domain.Kind(k))
	}

	resp, err := s.ports.Search.Search(ctx, input.Query, limit, filters)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	output := SearchOutput{
		Results:  make([]SearchResultOutput, len(resp.Hits)),
		Count:    len(resp.Hits),
		Warnings: resp.Warnings,
		Variants: resp.Variants,
	}
	for i, hit := range resp.Hits {
		doc := hit.Document
		output.Results[i] = SearchResultOutput{
			DocumentID:    doc.ID,
			Kind:          string(doc.Kind),
			Title:         doc.Title,
			Source:        doc.SourceSystem,
			Locator:       doc.SourceLocator,
			Score:         hit.Score,
			LexicalScore:  hit.LexicalScore,
			SemanticScore: hit.SemanticScore,
			Deleted:       doc.Deleted,
			Highlights:    hit.Highlights,
			Content:       snippet(doc.Body),
		}
	}

	return nil, output, nil
}

// handleIngest handles the ingest tool invocation.
func (s *Server) handleIngest(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input IngestInput,
) (*mcp.CallToolResult, IngestOutput, error) {
	refs := make([]domain.SourceRef, len(input.Sources))
	for i, name := range input.Sources {
		refs[i] = domain.SourceRef(name)
	}

	report, err := s.ports.Ingest.Ingest(ctx, refs, input.FullSync)
	if err != nil {
		return nil, IngestOutput{}, err
	}
	return nil, IngestOutput{
		RunID:   report.RunID,
		Sources: report.Sources,
		Failed:  report.FailedSources(),
	}, nil
}

func (s *Server) handleListTools(
	_ context.Context,
	_ *mcp.CallToolRequest,
	_ struct{},
) (*mcp.CallToolResult, ListToolsOutput, error) {
	return nil, ListToolsOutput{Tools: s.ports.Plans.Tools()}, nil
}

func (s *Server) handleCreatePlan(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input CreatePlanInput,
) (*mcp.CallToolResult, PlanOutput, error) {
	intent := domain.Intent{Description: input.Description}
	for _, op := range input.Operations {
		intent.Operations = append(intent.Operations, domain.Operation{
			Tool:      op.Tool,
			Arguments: domain.Arguments(op.Arguments),
			RiskLevel: domain.RiskLevel(op.RiskLevel),
		})
	}

	plan, err := s.ports.Plans.CreatePlan(ctx, intent)
	if err != nil {
		return nil, PlanOutput{}, err
	}
	return nil, planOutput(plan), nil
}

// handleConfirmPlan executes a plan. A failed execution is reported in the
// output rather than as a tool error, so the caller sees the step results
// and rollbacks.
func (s *Server) handleConfirmPlan(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ConfirmPlanInput,
) (*mcp.CallToolResult, ExecutionOutput, error) {
	result, err := s.ports.Plans.ConfirmAndExecute(ctx, input.PlanID, input.ConfirmationHash)
	if err != nil && len(result.Steps) == 0 {
		return nil, ExecutionOutput{}, err
	}

	out := ExecutionOutput{ExecutionResult: result}
	if err != nil {
		out.Error = err.Error()
	}
	return nil, out, nil
}

func (s *Server) handleCancelPlan(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input PlanIDInput,
) (*mcp.CallToolResult, PlanOutput, error) {
	if input.PlanID == "" {
		return nil, PlanOutput{}, errors.New("plan_id is required")
	}
	if err := s.ports.Plans.CancelPlan(ctx, input.PlanID); err != nil {
		return nil, PlanOutput{}, err
	}
	plan, err := s.ports.Plans.GetPlan(ctx, input.PlanID)
	if err != nil {
		return nil, PlanOutput{}, fmt.Errorf("reading cancelled plan: %w", err)
	}
	return nil, planOutput(plan), nil
}

func planOutput(plan *domain.Plan) PlanOutput {
	return PlanOutput{
		PlanID:               plan.ID,
		CorrelationID:        plan.CorrelationID,
		Status:               string(plan.Status),
		MaxRisk:              string(plan.MaxRisk()),
		RequiresConfirmation: plan.RequiresConfirmation(),
		ConfirmationHash:     plan.ConfirmationHash,
		Steps:                plan.Steps,
	}
}

func snippet(body *string) string {
	if body == nil {
		return ""
	}
	runes := []rune(*body)
	if len(runes) <= snippetLength {
		return *body
	}
	return string(runes[:snippetLength]) + "..."
}

package mcp

import (
	"context"

	"github.com/custodia-labs/keepsake/internal/core/domain"
)

// mockSearchService is a mock implementation of driving.SearchService.
type mockSearchService struct {
	response domain.SearchResponse
	err      error

	gotQuery   string
	gotLimit   int
	gotFilters domain.Filters
}

func (m *mockSearchService) Search(
	_ context.Context,
	query string,
	limit int,
	filters domain.Filters,
) (domain.SearchResponse, error) {
	m.gotQuery, m.gotLimit, m.gotFilters = query, limit, filters
	return m.response, m.err
}

// mockIngestService is a mock implementation of driving.IngestService.
type mockIngestService struct {
	sources []string
	report  domain.RunReport
	runs    []domain.RunReport
	err     error

	gotRefs     []domain.SourceRef
	gotFullSync bool
}

func (m *mockIngestService) Ingest(_ context.Context, refs []domain.SourceRef, fullSync bool) (domain.RunReport, error) {
	m.gotRefs, m.gotFullSync = refs, fullSync
	return m.report, m.err
}

func (m *mockIngestService) Sources() []string { return m.sources }

func (m *mockIngestService) Runs(_ context.Context, _ int) ([]domain.RunReport, error) {
	return m.runs, m.err
}

// mockPlanService is a mock implementation of driving.PlanService.
type mockPlanService struct {
	plan      *domain.Plan
	result    domain.ExecutionResult
	audit     []domain.AuditEntry
	tools     []domain.ToolInfo
	err       error
	execErr   error
	cancelled string

	gotIntent domain.Intent
	gotHash   string
}

func (m *mockPlanService) CreatePlan(_ context.Context, intent domain.Intent) (*domain.Plan, error) {
	m.gotIntent = intent
	return m.plan, m.err
}

func (m *mockPlanService) ConfirmAndExecute(_ context.Context, _, hash string) (domain.ExecutionResult, error) {
	m.gotHash = hash
	return m.result, m.execErr
}

func (m *mockPlanService) CancelPlan(_ context.Context, planID string) error {
	m.cancelled = planID
	if m.plan != nil {
		m.plan.Status = domain.PlanCancelled
	}
	return m.err
}

func (m *mockPlanService) GetPlan(_ context.Context, _ string) (*domain.Plan, error) {
	if m.plan == nil {
		return nil, domain.ErrNotFound
	}
	return m.plan, m.err
}

func (m *mockPlanService) ListPlans(_ context.Context, _ int) ([]domain.Plan, error) {
	if m.plan == nil {
		return nil, m.err
	}
	return []domain.Plan{*m.plan}, m.err
}

func (m *mockPlanService) GetAuditTrail(_ context.Context, _ string) ([]domain.AuditEntry, error) {
	return m.audit, m.err
}

func (m *mockPlanService) Tools() []domain.ToolInfo { return m.tools }

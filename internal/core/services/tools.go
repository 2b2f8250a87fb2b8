package services

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/custodia-labs/keepsake/internal/core/domain"
	"github.com/custodia-labs/keepsake/internal/core/ports/driven"
	"github.com/custodia-labs/keepsake/internal/resilience"
)

// UndoKey is the step output key a tool uses to refine its compensation at
// run time. Its value is a map merged over the compensation arguments; the
// entry "skip": true records the rollback as skipped instead of running it.
const UndoKey = "undo"

// Built-in tool names.
const (
	ToolSearch      = "search"
	ToolIngest      = "ingest"
	ToolTag         = "tag_document"
	ToolLink        = "link_documents"
	ToolUnlink      = "unlink_documents"
	ToolTombstone   = "tombstone_document"
	ToolRestore     = "restore_document"
	defaultLinkType = "related_to"
)

// Tool is an operation a plan step can invoke.
type Tool interface {
	Name() string
	Description() string

	// Risk is the declared risk. Plans can raise it, never lower it.
	Risk() domain.RiskLevel

	// Validate rejects malformed arguments before a plan is created.
	Validate(args domain.Arguments) error

	// Compensation returns the undo action for a call, or nil if none.
	Compensation(args domain.Arguments) *domain.Compensation

	Execute(ctx context.Context, args domain.Arguments) (map[string]any, error)
}

// RetryingTool is implemented by tools that need a non-default retry policy.
type RetryingTool interface {
	RetryPolicy() resilience.RetryPolicy
}

// ToolRegistry holds the tools available to plans.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewToolRegistry creates a registry containing the given tools.
func NewToolRegistry(tools ...Tool) *ToolRegistry {
	r := &ToolRegistry{tools: make(map[string]Tool)}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds or replaces a tool.
func (r *ToolRegistry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get returns the named tool or domain.ErrUnknownTool.
func (r *ToolRegistry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownTool, name)
	}
	return t, nil
}

// List returns all tools sorted by name.
func (r *ToolRegistry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// SearchFunc runs a search on behalf of a tool.
type SearchFunc func(ctx context.Context, query string, limit int, filters domain.Filters) (domain.SearchResponse, error)

// IngestFunc runs an ingest on behalf of a tool.
type IngestFunc func(ctx context.Context, refs []domain.SourceRef, fullSync bool) (domain.RunReport, error)

// BuiltinTools returns the standard tool set.
func BuiltinTools(
	search SearchFunc, ingest IngestFunc, docs driven.DocumentStore, rels driven.RelationshipStore,
) []Tool {
	return []Tool{
		&searchTool{search: search},
		&ingestTool{ingest: ingest},
		&tagTool{docs: docs},
		&linkTool{rels: rels},
		&unlinkTool{rels: rels},
		&tombstoneTool{docs: docs},
		&restoreTool{docs: docs},
	}
}

func requireString(args domain.Arguments, key string) (string, error) {
	v := args.Attributes().String(key, "")
	if v == "" {
		return "", domain.NewValidationError("argument %q is required", key)
	}
	return v, nil
}

func requireStrings(args domain.Arguments, keys ...string) error {
	for _, k := range keys {
		if _, err := requireString(args, k); err != nil {
			return err
		}
	}
	return nil
}

// ==================== search ====================

type searchTool struct {
	search SearchFunc
}

func (t *searchTool) Name() string           { return ToolSearch }
func (t *searchTool) Risk() domain.RiskLevel { return domain.RiskReadOnly }
func (t *searchTool) Description() string {
	return "Hybrid search over stored documents. Arguments: query, limit, kinds."
}

func (t *searchTool) Validate(args domain.Arguments) error {
	_, err := requireString(args, "query")
	return err
}

func (t *searchTool) Compensation(domain.Arguments) *domain.Compensation { return nil }

func (t *searchTool) Execute(ctx context.Context, args domain.Arguments) (map[string]any, error) {
	a := args.Attributes()
	var filters domain.Filters
	for _, k := range a.Strings("kinds") {
		filters.Kinds = append(filters.Kinds, domain.Kind(k))
	}
	filters.SourceSystems = a.Strings("sources")

	resp, err := t.search(ctx, a.String("query", ""), int(a.Int("limit", DefaultSearchLimit)), filters)
	if err != nil {
		return nil, err
	}

	hits := make([]map[string]any, 0, len(resp.Hits))
	for _, h := range resp.Hits {
		hits = append(hits, map[string]any{
			"id":    h.Document.ID,
			"kind":  string(h.Document.Kind),
			"title": h.Document.Title,
			"score": h.Score,
		})
	}
	out := map[string]any{"hits": hits}
	if len(resp.Warnings) > 0 {
		out["warnings"] = resp.Warnings
	}
	return out, nil
}

// ==================== ingest ====================

type ingestTool struct {
	ingest IngestFunc
}

func (t *ingestTool) Name() string           { return ToolIngest }
func (t *ingestTool) Risk() domain.RiskLevel { return domain.RiskMutating }
func (t *ingestTool) Description() string {
	return "Ingest configured sources. Arguments: sources (empty for all), full_sync."
}

func (t *ingestTool) Validate(domain.Arguments) error                    { return nil }
func (t *ingestTool) Compensation(domain.Arguments) *domain.Compensation { return nil }

// RetryPolicy implements RetryingTool. An ingest run is not repeated.
func (t *ingestTool) RetryPolicy() resilience.RetryPolicy { return resilience.NoRetry() }

func (t *ingestTool) Execute(ctx context.Context, args domain.Arguments) (map[string]any, error) {
	a := args.Attributes()
	var refs []domain.SourceRef
	for _, s := range a.Strings("sources") {
		refs = append(refs, domain.SourceRef(s))
	}

	report, err := t.ingest(ctx, refs, a.Bool("full_sync", false))
	if err != nil {
		return nil, err
	}
	totals := report.Totals()
	return map[string]any{
		"run_id":     report.RunID,
		"processed":  totals.Processed,
		"created":    totals.Created,
		"updated":    totals.Updated,
		"tombstoned": totals.Tombstoned,
		"failed":     report.FailedSources(),
	}, nil
}

// ==================== tag_document ====================

type tagTool struct {
	docs driven.DocumentStore
}

func (t *tagTool) Name() string           { return ToolTag }
func (t *tagTool) Risk() domain.RiskLevel { return domain.RiskMutating }
func (t *tagTool) Description() string {
	return "Set one attribute on a document. Arguments: id, key, value (null removes the key)."
}

func (t *tagTool) Validate(args domain.Arguments) error {
	if err := requireStrings(args, "id", "key"); err != nil {
		return err
	}
	if !args.Attributes().Has("value") {
		return domain.NewValidationError("argument %q is required", "value")
	}
	return nil
}

// Compensation re-tags the same key. The previous value arrives through
// the step's undo output.
func (t *tagTool) Compensation(args domain.Arguments) *domain.Compensation {
	return &domain.Compensation{
		ToolName:  ToolTag,
		Arguments: domain.Arguments{"id": args["id"], "key": args["key"], "value": nil},
	}
}

func (t *tagTool) Execute(ctx context.Context, args domain.Arguments) (map[string]any, error) {
	a := args.Attributes()
	prev, existed, err := t.docs.SetAttribute(ctx, a.String("id", ""), a.String("key", ""), args["value"])
	if err != nil {
		return nil, err
	}
	undo := map[string]any{"value": nil}
	if existed {
		undo["value"] = prev
	}
	return map[string]any{"previous": prev, "existed": existed, UndoKey: undo}, nil
}

// ==================== link_documents ====================

type linkTool struct {
	rels driven.RelationshipStore
}

func (t *linkTool) Name() string           { return ToolLink }
func (t *linkTool) Risk() domain.RiskLevel { return domain.RiskMutating }
func (t *linkTool) Description() string {
	return "Create a typed relationship. Arguments: from, to, type, strength."
}

func (t *linkTool) Validate(args domain.Arguments) error {
	if err := requireStrings(args, "from", "to"); err != nil {
		return err
	}
	if s := args.Attributes().Float("strength", 1); s < 0 || s > 1 {
		return domain.NewValidationError("strength must be within [0, 1]")
	}
	return nil
}

func (t *linkTool) Compensation(args domain.Arguments) *domain.Compensation {
	return &domain.Compensation{
		ToolName: ToolUnlink,
		Arguments: domain.Arguments{
			"from": args["from"],
			"to":   args["to"],
			"type": linkType(args),
		},
	}
}

func (t *linkTool) Execute(ctx context.Context, args domain.Arguments) (map[string]any, error) {
	a := args.Attributes()
	created, err := t.rels.Add(ctx, domain.Relationship{
		FromID:   a.String("from", ""),
		ToID:     a.String("to", ""),
		Type:     linkType(args),
		Strength: a.Float("strength", 1),
	})
	if err != nil {
		return nil, err
	}
	out := map[string]any{"created": created}
	if !created {
		out[UndoKey] = map[string]any{"skip": true}
	}
	return out, nil
}

func linkType(args domain.Arguments) string {
	return args.Attributes().String("type", defaultLinkType)
}

// ==================== unlink_documents ====================

type unlinkTool struct {
	rels driven.RelationshipStore
}

func (t *unlinkTool) Name() string           { return ToolUnlink }
func (t *unlinkTool) Risk() domain.RiskLevel { return domain.RiskDestructive }
func (t *unlinkTool) Description() string {
	return "Remove a typed relationship. Arguments: from, to, type."
}

func (t *unlinkTool) Validate(args domain.Arguments) error {
	return requireStrings(args, "from", "to")
}

func (t *unlinkTool) Compensation(domain.Arguments) *domain.Compensation { return nil }

func (t *unlinkTool) Execute(ctx context.Context, args domain.Arguments) (map[string]any, error) {
	a := args.Attributes()
	removed, err := t.rels.Remove(ctx, a.String("from", ""), a.String("to", ""), linkType(args))
	if err != nil {
		return nil, err
	}
	return map[string]any{"removed": removed}, nil
}

// ==================== tombstone_document / restore_document ====================

type tombstoneTool struct {
	docs driven.DocumentStore
}

func (t *tombstoneTool) Name() string           { return ToolTombstone }
func (t *tombstoneTool) Risk() domain.RiskLevel { return domain.RiskDestructive }
func (t *tombstoneTool) Description() string {
	return "Mark a document as deleted. Arguments: id."
}

func (t *tombstoneTool) Validate(args domain.Arguments) error {
	_, err := requireString(args, "id")
	return err
}

func (t *tombstoneTool) Compensation(args domain.Arguments) *domain.Compensation {
	return &domain.Compensation{ToolName: ToolRestore, Arguments: domain.Arguments{"id": args["id"]}}
}

func (t *tombstoneTool) Execute(ctx context.Context, args domain.Arguments) (map[string]any, error) {
	wasDeleted, err := t.docs.SetDeleted(ctx, args.Attributes().String("id", ""), true)
	if err != nil {
		return nil, err
	}
	out := map[string]any{"was_deleted": wasDeleted}
	if wasDeleted {
		out[UndoKey] = map[string]any{"skip": true}
	}
	return out, nil
}

type restoreTool struct {
	docs driven.DocumentStore
}

func (t *restoreTool) Name() string           { return ToolRestore }
func (t *restoreTool) Risk() domain.RiskLevel { return domain.RiskMutating }
func (t *restoreTool) Description() string {
	return "Clear a document's deleted flag. Arguments: id."
}

func (t *restoreTool) Validate(args domain.Arguments) error {
	_, err := requireString(args, "id")
	return err
}

func (t *restoreTool) Compensation(domain.Arguments) *domain.Compensation { return nil }

func (t *restoreTool) Execute(ctx context.Context, args domain.Arguments) (map[string]any, error) {
	wasDeleted, err := t.docs.SetDeleted(ctx, args.Attributes().String("id", ""), false)
	if err != nil {
		return nil, err
	}
	return map[string]any{"was_deleted": wasDeleted}, nil
}

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/keepsake/internal/core/domain"
)

var (
	searchLimit          int
	searchJSON           bool
	searchKinds          []string
	searchSources        []string
	searchIncludeDeleted bool
	searchAfter          string
	searchBefore         string
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search stored documents",
	Long: `Performs hybrid search across all stored documents.
Combines keyword (BM25) and semantic (vector) search. When either path is
unavailable, the other still answers and a warning is shown.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "maximum number of results")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	searchCmd.Flags().StringSliceVarP(&searchKinds, "kind", "k", nil, "restrict to kinds (email, message, event, reminder, note, file, contact)")
	searchCmd.Flags().StringSliceVarP(&searchSources, "source", "s", nil, "restrict to source names")
	searchCmd.Flags().BoolVar(&searchIncludeDeleted, "include-deleted", false, "include tombstoned documents")
	searchCmd.Flags().StringVar(&searchAfter, "after", "", "only documents updated after this date (YYYY-MM-DD or RFC 3339)")
	searchCmd.Flags().StringVar(&searchBefore, "before", "", "only documents updated before this date (YYYY-MM-DD or RFC 3339)")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, err := requireApp()
	if err != nil {
		return err
	}

	filters, err := searchFilters()
	if err != nil {
		return err
	}

	resp, err := a.Engine.Search(cmd.Context(), args[0], searchLimit, filters)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return writeJSON(cmd.OutOrStdout(), resp)
	}
	renderSearch(cmd.OutOrStdout(), resp)
	return nil
}

func searchFilters() (domain.Filters, error) {
	filters := domain.Filters{
		SourceSystems:  searchSources,
		IncludeDeleted: searchIncludeDeleted,
	}
	for _, k := range searchKinds {
		kind := domain.Kind(strings.ToLower(k))
		if !kind.IsValid() {
			return filters, fmt.Errorf("unknown kind %q", k)
		}
		filters.Kinds = append(filters.Kinds, kind)
	}

	var err error
	if filters.UpdatedAfter, err = parseDateFlag("after", searchAfter); err != nil {
		return filters, err
	}
	if filters.UpdatedBefore, err = parseDateFlag("before", searchBefore); err != nil {
		return filters, err
	}
	return filters, nil
}

func parseDateFlag(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, value); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("--%s: cannot parse %q as a date", name, value)
}

func renderSearch(w io.Writer, resp domain.SearchResponse) {
	for _, warning := range resp.Warnings {
		fmt.Fprintln(w, warningStyle.Render("warning: "+warning))
	}

	if len(resp.Hits) == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}

	fmt.Fprintln(w, titleStyle.Render("Results"))
	if len(resp.Variants) > 1 {
		fmt.Fprintln(w, mutedStyle.Render("expanded: "+strings.Join(resp.Variants[1:], " | ")))
	}
	fmt.Fprintln(w)

	for i, hit := range resp.Hits {
		doc := hit.Document
		title := doc.Title
		if title == "" {
			title = doc.ID
		}
		if doc.Deleted {
			title += " (deleted)"
		}

		fmt.Fprintf(w, "  [%d] %s %s\n", i+1, title,
			mutedStyle.Render(fmt.Sprintf("(%.2f: lexical %.2f, semantic %.2f)", hit.Score, hit.LexicalScore, hit.SemanticScore)))
		fmt.Fprintf(w, "      %s\n", mutedStyle.Render(fmt.Sprintf("%s from %s", doc.Kind, doc.SourceSystem)))
		if doc.SourceLocator != "" {
			fmt.Fprintf(w, "      %s\n", doc.SourceLocator)
		}
		if len(hit.Highlights) > 0 {
			fmt.Fprintf(w, "      %s\n", hit.Highlights[0])
		}
		fmt.Fprintln(w)
	}
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

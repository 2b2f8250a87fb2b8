package domain

import "time"

// SourceRef names a registered source adapter.
type SourceRef string

// SourceStats holds per-source counters for one ingestion run.
type SourceStats struct {
	Source     string        `json:"source"`
	Processed  int           `json:"processed"`
	Created    int           `json:"created"`
	Updated    int           `json:"updated"`
	Unchanged  int           `json:"unchanged"`
	Tombstoned int           `json:"tombstoned"`
	Errors     int           `json:"errors"`
	Duration   time.Duration `json:"duration"`

	// Error is the failure that aborted this source, if any.
	Error string `json:"error,omitempty"`

	// ErrorClass is the classification of Error.
	ErrorClass ErrorClass `json:"error_class,omitempty"`
}

// Failed reports whether the source was aborted.
func (s SourceStats) Failed() bool {
	return s.Error != ""
}

// RunReport aggregates one coordinator invocation.
type RunReport struct {
	RunID      string        `json:"run_id"`
	FullSync   bool          `json:"full_sync"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration"`
	Sources    []SourceStats `json:"sources"`

	// IndexRebuilt is true when the post-run consistency pass rebuilt the text index.
	IndexRebuilt bool `json:"index_rebuilt"`

	// Linked counts relationships created by post-run linking passes.
	Linked int `json:"linked"`
}

// Totals sums the per-source counters.
func (r RunReport) Totals() SourceStats {
	var t SourceStats
	t.Source = "total"
	for _, s := range r.Sources {
		t.Processed += s.Processed
		t.Created += s.Created
		t.Updated += s.Updated
		t.Unchanged += s.Unchanged
		t.Tombstoned += s.Tombstoned
		t.Errors += s.Errors
	}
	t.Duration = r.Duration
	return t
}

// FailedSources returns the names of aborted sources.
func (r RunReport) FailedSources() []string {
	var out []string
	for _, s := range r.Sources {
		if s.Failed() {
			out = append(out, s.Source)
		}
	}
	return out
}

// SyncState records the last successful sync of a source.
type SyncState struct {
	SourceSystem string
	LastSync     time.Time
}

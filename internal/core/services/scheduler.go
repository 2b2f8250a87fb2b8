package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/keepsake/internal/core/domain"
	"github.com/custodia-labs/keepsake/internal/core/ports/driven"
	"github.com/custodia-labs/keepsake/internal/logger"
)

// DefaultWatchDebounce coalesces bursts of change events into one run.
const DefaultWatchDebounce = 2 * time.Second

// SchedulerConfig controls background ingestion.
type SchedulerConfig struct {
	// Interval between full ingests of every source. Zero disables the timer.
	Interval time.Duration

	// Debounce delays a watch-triggered run until events stop arriving.
	Debounce time.Duration

	// FullSync makes timed runs full syncs.
	FullSync bool
}

// Scheduler runs ingestion in the background: on a fixed interval, and
// whenever a watching source reports a change.
// Runs are issued from a single loop, so they never overlap.
type Scheduler struct {
	config   SchedulerConfig
	ingest   IngestFunc
	watchers map[string]driven.Watcher

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}
}

// NewScheduler creates a scheduler. Sources that implement driven.Watcher
// are watched for changes.
func NewScheduler(config SchedulerConfig, ingest IngestFunc, sources []driven.SourceAdapter) *Scheduler {
	if config.Debounce <= 0 {
		config.Debounce = DefaultWatchDebounce
	}
	watchers := make(map[string]driven.Watcher)
	for _, src := range sources {
		if w, ok := src.(driven.Watcher); ok {
			watchers[src.Name()] = w
		}
	}
	return &Scheduler{
		config:   config,
		ingest:   ingest,
		watchers: watchers,
	}
}

// Watching returns the names of the watched sources.
func (s *Scheduler) Watching() []string {
	names := make([]string, 0, len(s.watchers))
	for name := range s.watchers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start runs the scheduler loop. This method blocks until Stop is called
// or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil // Already running
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	stopCh, done := s.stopCh, s.done
	s.mu.Unlock()
	defer close(done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	changes := make(chan string, 16)
	for name, w := range s.watchers {
		events, err := w.Watch(ctx)
		if err != nil {
			logger.Warn("Watching %s failed: %v", name, err)
			continue
		}
		go forward(ctx, events, changes)
		logger.Info("Watching source %s", name)
	}

	// Catch up once on startup
	s.run(ctx, nil, s.config.FullSync)

	var tick <-chan time.Time
	if s.config.Interval > 0 {
		ticker := time.NewTicker(s.config.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	pending := make(map[string]struct{})
	var debounce <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stopCh:
			return nil
		case <-tick:
			s.run(ctx, nil, s.config.FullSync)
		case name := <-changes:
			pending[name] = struct{}{}
			debounce = time.After(s.config.Debounce)
		case <-debounce:
			refs := make([]domain.SourceRef, 0, len(pending))
			for name := range pending {
				refs = append(refs, domain.SourceRef(name))
			}
			sort.Slice(refs, func(i, j int) bool { return refs[i] < refs[j] })
			pending = make(map[string]struct{})
			debounce = nil
			s.run(ctx, refs, false)
		}
	}
}

// Stop shuts the loop down and waits for the current run to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	done := s.done
	s.mu.Unlock()

	<-done
	return nil
}

func (s *Scheduler) run(ctx context.Context, refs []domain.SourceRef, fullSync bool) {
	if ctx.Err() != nil {
		return
	}
	report, err := s.ingest(ctx, refs, fullSync)
	if err != nil {
		logger.Warn("Scheduled ingest failed: %v", err)
		return
	}
	totals := report.Totals()
	logger.Info("Scheduled ingest: %d processed, %d created, %d updated, %d failed sources",
		totals.Processed, totals.Created, totals.Updated, len(report.FailedSources()))
}

// forward copies change events until either side is done.
func forward(ctx context.Context, in <-chan string, out chan<- string) {
	for {
		select {
		case <-ctx.Done():
			return
		case name, ok := <-in:
			if !ok {
				return
			}
			select {
			case out <- name:
			case <-ctx.Done():
				return
			}
		}
	}
}

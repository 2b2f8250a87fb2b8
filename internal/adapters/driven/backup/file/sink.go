package file

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/custodia-labs/keepsake/internal/core/ports/driven"
	"github.com/custodia-labs/keepsake/internal/logger"
)

// DefaultKeep is the number of snapshots retained when none is configured.
const DefaultKeep = 5

const (
	snapshotPrefix = "keepsake-"
	snapshotSuffix = ".db"
	timeLayout     = "20060102T150405.000000000Z"
)

// Ensure Sink implements the interface.
var _ driven.BackupSink = (*Sink)(nil)

// Sink writes snapshots into a single directory.
type Sink struct {
	dir  string
	keep int
	now  func() time.Time
}

// New creates a sink writing to dir and keeping the newest keep snapshots.
func New(dir string, keep int) *Sink {
	if keep <= 0 {
		keep = DefaultKeep
	}
	return &Sink{dir: dir, keep: keep, now: time.Now}
}

// Dir returns the snapshot directory.
func (s *Sink) Dir() string {
	return s.dir
}

// Snapshot copies storePath into the snapshot directory. The copy is
// written to a temp file, synced and renamed, so a snapshot is either
// complete or absent.
func (s *Sink) Snapshot(ctx context.Context, storePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("creating backup directory: %w", err)
	}

	name := snapshotPrefix + s.now().UTC().Format(timeLayout) + snapshotSuffix
	target := filepath.Join(s.dir, name)
	if err := copyFile(storePath, target); err != nil {
		return err
	}
	logger.Debug("Snapshot written to %s", target)

	return s.prune()
}

// Snapshots lists snapshot paths, oldest first.
func (s *Sink) Snapshots() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing backups: %w", err)
	}

	var names []string
	for _, e := range entries {
		n := e.Name()
		if !e.IsDir() && strings.HasPrefix(n, snapshotPrefix) && strings.HasSuffix(n, snapshotSuffix) {
			names = append(names, n)
		}
	}
	// The timestamp layout sorts lexically.
	sort.Strings(names)

	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(s.dir, n)
	}
	return paths, nil
}

func (s *Sink) prune() error {
	paths, err := s.Snapshots()
	if err != nil {
		return err
	}
	for len(paths) > s.keep {
		if err := os.Remove(paths[0]); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("pruning backup: %w", err)
		}
		logger.Debug("Pruned snapshot %s", paths[0])
		paths = paths[1:]
	}
	return nil
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".snapshot-*")
	if err != nil {
		return fmt.Errorf("creating snapshot: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = io.Copy(tmp, in); err != nil {
		return fmt.Errorf("copying store: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("syncing snapshot: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing snapshot: %w", err)
	}
	if err = os.Chmod(tmp.Name(), 0600); err != nil {
		return fmt.Errorf("chmod snapshot: %w", err)
	}
	if err = os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("renaming snapshot: %w", err)
	}
	return nil
}

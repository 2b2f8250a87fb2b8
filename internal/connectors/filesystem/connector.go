// Package filesystem provides a SourceAdapter over a directory of local
// files: notes, saved pages and exported mail.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/keepsake/internal/core/domain"
	"github.com/custodia-labs/keepsake/internal/core/ports/driven"
	"github.com/custodia-labs/keepsake/internal/logger"
	"github.com/custodia-labs/keepsake/internal/normalisers"
	"github.com/custodia-labs/keepsake/internal/normalisers/eml"
	"github.com/custodia-labs/keepsake/internal/normalisers/html"
	"github.com/custodia-labs/keepsake/internal/normalisers/ics"
	"github.com/custodia-labs/keepsake/internal/normalisers/markdown"
	"github.com/custodia-labs/keepsake/internal/normalisers/plaintext"
)

// Type is the source type name used in configuration.
const Type = "filesystem"

// MaxFileSize is the largest file read. Larger files are skipped as
// validation errors.
const MaxFileSize = 10 << 20

// Ensure Connector implements the interfaces.
var (
	_ driven.SourceAdapter = (*Connector)(nil)
	_ driven.Watcher       = (*Connector)(nil)
)

// DefaultNormalisers returns the registry used when none is given.
func DefaultNormalisers() *normalisers.Registry {
	return normalisers.NewRegistry(markdown.New(), plaintext.New(), html.New(), eml.New(), ics.New())
}

// Connector walks a directory tree and turns each supported file into a
// record. Source ids are slash-separated paths relative to the root.
type Connector struct {
	name        string
	rootPath    string
	normalisers *normalisers.Registry

	mu      sync.Mutex
	closed  bool
	watcher *fsnotify.Watcher
}

// New creates a filesystem connector. A nil registry uses DefaultNormalisers.
func New(name, rootPath string, registry *normalisers.Registry) *Connector {
	if registry == nil {
		registry = DefaultNormalisers()
	}
	return &Connector{
		name:        name,
		rootPath:    rootPath,
		normalisers: registry,
	}
}

// Name returns the source system name.
func (c *Connector) Name() string { return c.name }

// Kinds returns every kind the registered normalisers produce.
func (c *Connector) Kinds() []domain.Kind {
	return c.normalisers.Kinds()
}

// Validate checks that the root path is an accessible directory.
func (c *Connector) Validate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := os.Stat(c.rootPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: root path does not exist: %s", domain.ErrConfiguration, c.rootPath)
		}
		if os.IsPermission(err) {
			return domain.PermissionError(fmt.Errorf("root path not accessible: %s", c.rootPath))
		}
		return fmt.Errorf("root path error: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: root path is not a directory: %s", domain.ErrConfiguration, c.rootPath)
	}
	return nil
}

// Fetch walks the tree in lexical order. Unless fullSync is set, files not
// modified after since are skipped. Unsupported, hidden and oversized files
// never reach the store; unreadable ones are yielded as validation errors.
func (c *Connector) Fetch(ctx context.Context, since *time.Time, fullSync bool) iter.Seq2[domain.RawRecord, error] {
	return func(yield func(domain.RawRecord, error) bool) {
		if err := c.Validate(ctx); err != nil {
			yield(domain.RawRecord{}, err)
			return
		}

		stopped := errors.New("stopped")
		err := filepath.WalkDir(c.rootPath, func(path string, d fs.DirEntry, walkErr error) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if walkErr != nil {
				if path == c.rootPath {
					return walkErr
				}
				if !yield(domain.RawRecord{}, domain.NewValidationError("walk %s: %v", path, walkErr)) {
					return stopped
				}
				return nil
			}
			if path != c.rootPath && isHidden(d.Name()) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				return nil
			}

			info, err := d.Info()
			if err != nil {
				return nil // Removed mid-walk
			}
			if !fullSync && since != nil && !info.ModTime().After(*since) {
				return nil
			}

			rec, ok, err := c.read(ctx, path, info)
			if !ok {
				return nil
			}
			if !yield(rec, err) {
				return stopped
			}
			return nil
		})
		if err != nil && !errors.Is(err, stopped) {
			yield(domain.RawRecord{}, fmt.Errorf("walking %s: %w", c.rootPath, err))
		}
	}
}

// read normalises one file. ok is false when the file type is unsupported.
func (c *Connector) read(ctx context.Context, path string, info fs.FileInfo) (domain.RawRecord, bool, error) {
	mimeType := detectMIMEType(path)
	n, ok := c.normalisers.Get(mimeType)
	if !ok {
		logger.Debug("filesystem: skipping %s (%s)", path, mimeType)
		return domain.RawRecord{}, false, nil
	}
	if info.Size() > MaxFileSize {
		return domain.RawRecord{}, true, domain.NewValidationError("%s exceeds %d bytes", path, MaxFileSize)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return domain.RawRecord{}, true, domain.NewValidationError("read %s: %v", path, err)
	}

	rec, err := n.Normalise(ctx, driven.NormaliseInput{Path: path, MIMEType: mimeType, Content: content})
	if err != nil {
		return domain.RawRecord{}, true, err
	}

	rel, err := filepath.Rel(c.rootPath, path)
	if err != nil {
		rel = path
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	rec.SourceID = filepath.ToSlash(rel)
	rec.SourceLocator = "file://" + filepath.ToSlash(abs)
	rec.ModifiedAt = info.ModTime().UTC()
	return rec, true, nil
}

// Watch emits the connector name whenever a supported file under the root
// is created, written, removed or renamed. The channel closes when ctx is
// cancelled or the connector is closed.
func (c *Connector) Watch(ctx context.Context) (<-chan string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, errors.New("connector is closed")
	}
	if err := c.Validate(ctx); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	// fsnotify is not recursive; add every visible directory.
	err = filepath.WalkDir(c.rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != c.rootPath && isHidden(d.Name()) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
	if err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watching %s: %w", c.rootPath, err)
	}
	c.watcher = watcher

	changes := make(chan string, 1)
	go c.watchLoop(ctx, watcher, changes)
	return changes, nil
}

func (c *Connector) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, changes chan<- string) {
	defer close(changes)
	defer watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !c.handleFsEvent(watcher, event) {
				continue
			}
			// Coalesce: one pending notification is enough.
			select {
			case changes <- c.name:
			default:
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("filesystem watch %s: %v", c.name, err)
		}
	}
}

// handleFsEvent reports whether an event affects indexed content. New
// directories are added to the watch.
func (c *Connector) handleFsEvent(watcher *fsnotify.Watcher, event fsnotify.Event) bool {
	rel, err := filepath.Rel(c.rootPath, event.Name)
	if err != nil || isHidden(rel) {
		return false
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if watcher != nil {
				if err := watcher.Add(event.Name); err != nil {
					logger.Warn("filesystem watch: adding %s: %v", event.Name, err)
				}
			}
			return false
		}
	}
	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		return true
	}
	_, ok := c.normalisers.Get(detectMIMEType(event.Name))
	return ok
}

// Close stops any active watch. It is idempotent.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	if c.watcher != nil {
		c.watcher.Close()
		c.watcher = nil
	}
	return nil
}

var fallbackTypes = map[string]string{
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".txt":      "text/plain",
	".go":       "text/x-go",
	".py":       "text/x-python",
	".rs":       "text/x-rust",
	".ts":       "text/typescript",
	".yaml":     "text/yaml",
	".yml":      "text/yaml",
	".toml":     "text/toml",
	".sh":       "text/x-shellscript",
	".bash":     "text/x-shellscript",
	".sql":      "text/x-sql",
	".csv":      "text/csv",
	".eml":      "message/rfc822",
	".ics":      "text/calendar",
}

// detectMIMEType maps a file name to a MIME type without parameters.
func detectMIMEType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return "text/plain"
	}
	if t, ok := fallbackTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		if i := strings.IndexByte(t, ';'); i >= 0 {
			t = t[:i]
		}
		return strings.TrimSpace(t)
	}
	return "application/octet-stream"
}

// isHidden reports whether any element of path starts with a dot.
// "." and ".." are not hidden.
func isHidden(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == "" || part == "." || part == ".." {
			continue
		}
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}

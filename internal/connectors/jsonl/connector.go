// Package jsonl provides a SourceAdapter over a file of JSON records, one
// per line, as written by exporters for mail, calendars, contacts and chat.
package jsonl

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/keepsake/internal/core/domain"
	"github.com/custodia-labs/keepsake/internal/core/ports/driven"
	"github.com/custodia-labs/keepsake/internal/logger"
)

// Type is the source type name used in configuration.
const Type = "jsonl"

// maxLine bounds a single record.
const maxLine = 4 << 20

// Ensure Connector implements the interfaces.
var (
	_ driven.SourceAdapter = (*Connector)(nil)
	_ driven.Watcher       = (*Connector)(nil)
)

// defaultKinds are claimed when none are configured.
var defaultKinds = []domain.Kind{
	domain.KindEmail, domain.KindMessage, domain.KindEvent, domain.KindReminder,
	domain.KindNote, domain.KindFile, domain.KindContact,
}

// Record is the wire form of one line.
type Record struct {
	Kind       domain.Kind       `json:"kind"`
	ID         string            `json:"id"`
	Title      string            `json:"title"`
	Body       *string           `json:"body,omitempty"`
	Locator    string            `json:"locator,omitempty"`
	Attributes domain.Attributes `json:"attributes,omitempty"`
	Details    json.RawMessage   `json:"details,omitempty"`
	ModifiedAt *time.Time        `json:"modified_at,omitempty"`
}

// Connector reads records from a JSONL file.
type Connector struct {
	name  string
	path  string
	kinds []domain.Kind
}

// New creates a JSONL connector. With no kinds, every built-in kind is
// claimed, so a clean full sync tombstones records of any kind that
// disappeared from the file.
func New(name, path string, kinds ...domain.Kind) *Connector {
	if len(kinds) == 0 {
		kinds = defaultKinds
	}
	return &Connector{name: name, path: path, kinds: kinds}
}

// Name returns the source system name.
func (c *Connector) Name() string { return c.name }

// Kinds returns the kinds this source claims.
func (c *Connector) Kinds() []domain.Kind { return c.kinds }

// Fetch yields records in file order. Unless fullSync is set, records whose
// modified_at is not after since are skipped; records without modified_at
// are always yielded. Malformed lines are validation errors.
func (c *Connector) Fetch(ctx context.Context, since *time.Time, fullSync bool) iter.Seq2[domain.RawRecord, error] {
	return func(yield func(domain.RawRecord, error) bool) {
		f, err := os.Open(c.path)
		if err != nil {
			if os.IsNotExist(err) {
				err = fmt.Errorf("%w: %s does not exist", domain.ErrConfiguration, c.path)
			} else if os.IsPermission(err) {
				err = domain.PermissionError(err)
			}
			yield(domain.RawRecord{}, err)
			return
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 64*1024), maxLine)

		line := 0
		for scanner.Scan() {
			line++
			if err := ctx.Err(); err != nil {
				yield(domain.RawRecord{}, err)
				return
			}
			data := bytes.TrimSpace(scanner.Bytes())
			if len(data) == 0 {
				continue
			}

			rec, modified, err := decode(data)
			if err != nil {
				if !yield(domain.RawRecord{}, fmt.Errorf("line %d: %w", line, err)) {
					return
				}
				continue
			}
			if !fullSync && since != nil && modified != nil && !modified.After(*since) {
				continue
			}
			if !yield(rec, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(domain.RawRecord{}, fmt.Errorf("reading %s after line %d: %w", c.path, line, err))
		}
	}
}

func decode(data []byte) (domain.RawRecord, *time.Time, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var r Record
	if err := dec.Decode(&r); err != nil {
		return domain.RawRecord{}, nil, domain.NewValidationError("decode: %v", err)
	}
	if r.ID == "" {
		return domain.RawRecord{}, nil, domain.NewValidationError("record has no id")
	}
	if !r.Kind.IsValid() {
		return domain.RawRecord{}, nil, domain.NewValidationError("record %q has no kind", r.ID)
	}

	ext, err := domain.DecodeExtension(r.Kind, r.Details)
	if err != nil {
		return domain.RawRecord{}, nil, fmt.Errorf("record %q: %w", r.ID, err)
	}

	rec := domain.RawRecord{
		Kind:          r.Kind,
		SourceID:      r.ID,
		Title:         r.Title,
		Body:          r.Body,
		SourceLocator: r.Locator,
		Attributes:    r.Attributes,
		Extension:     ext,
	}
	if r.ModifiedAt != nil {
		rec.ModifiedAt = r.ModifiedAt.UTC()
	}
	return rec, r.ModifiedAt, nil
}

// Watch emits the connector name when the file is written or replaced.
// The parent directory is watched so that atomic renames are seen.
func (c *Connector) Watch(ctx context.Context) (<-chan string, error) {
	target := filepath.Clean(c.path)
	if _, err := os.Stat(target); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrConfiguration, target, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watching %s: %w", target, err)
	}

	changes := make(chan string, 1)
	go func() {
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
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				select {
				case changes <- c.name:
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("jsonl watch %s: %v", c.name, err)
			}
		}
	}()
	return changes, nil
}

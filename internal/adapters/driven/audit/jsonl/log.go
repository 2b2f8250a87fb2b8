package jsonl

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/custodia-labs/keepsake/internal/core/domain"
	"github.com/custodia-labs/keepsake/internal/core/ports/driven"
	"github.com/custodia-labs/keepsake/internal/logger"
)

// Ensure Log implements the interface.
var _ driven.AuditLog = (*Log)(nil)

// maxLine bounds a single audit entry.
const maxLine = 1 << 20

// Log is a file-backed audit log.
type Log struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// Open opens or creates the audit log at path.
// If path is empty, defaults to ~/.keepsake/audit.jsonl.
func Open(path string) (*Log, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(home, ".keepsake", "audit.jsonl")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating audit directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	return &Log{path: path, file: f}, nil
}

// Path returns the log file path.
func (l *Log) Path() string {
	return l.path
}

// Close closes the log.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Append writes one entry and syncs it to disk.
func (l *Log) Append(ctx context.Context, entry domain.AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if entry.CorrelationID == "" || entry.Event == "" {
		return domain.NewValidationError("audit entry needs a correlation id and an event")
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding audit entry: %w", err)
	}
	if len(line) >= maxLine {
		return domain.NewValidationError("audit entry exceeds %d bytes", maxLine)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return fmt.Errorf("%w: audit log is closed", domain.ErrStorage)
	}
	if _, err := l.file.Write(line); err != nil {
		return fmt.Errorf("%w: writing audit entry: %w", domain.ErrStorage, err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("%w: syncing audit log: %w", domain.ErrStorage, err)
	}
	return nil
}

// Trail returns every entry with the correlation id, in write order.
func (l *Log) Trail(ctx context.Context, correlationID string) ([]domain.AuditEntry, error) {
	var out []domain.AuditEntry
	err := l.scan(ctx, func(e domain.AuditEntry) {
		if e.CorrelationID == correlationID {
			out = append(out, e)
		}
	})
	return out, err
}

// All returns every entry in write order.
func (l *Log) All(ctx context.Context) ([]domain.AuditEntry, error) {
	var out []domain.AuditEntry
	err := l.scan(ctx, func(e domain.AuditEntry) { out = append(out, e) })
	return out, err
}

func (l *Log) scan(ctx context.Context, fn func(domain.AuditEntry)) error {
	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: opening audit log: %w", domain.ErrStorage, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxLine)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		if err := ctx.Err(); err != nil {
			return err
		}
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var e domain.AuditEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			logger.Warn("Skipping unreadable audit line %d: %v", lineNo, err)
			continue
		}
		fn(e)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("%w: reading audit log: %w", domain.ErrStorage, err)
	}
	return nil
}

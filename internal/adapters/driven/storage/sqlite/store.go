package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/keepsake/internal/core/domain"
	"github.com/custodia-labs/keepsake/internal/core/ports/driven"
)

// DefaultBusyTimeout is how long SQLite itself waits on a locked database.
const DefaultBusyTimeout = 5 * time.Second

// Options configures a Store.
type Options struct {
	// WriteTimeout bounds the wait for the store's single writer lease.
	WriteTimeout time.Duration

	// BusyTimeout is passed to SQLite's busy handler.
	BusyTimeout time.Duration

	// Observer receives write gate events.
	Observer GateObserver
}

// Store is a unified SQLite-based storage that provides access to
// all driven store interfaces through wrapper types.
// Every operation, reads included, holds the write gate.
type Store struct {
	db   *sql.DB
	path string
	gate *writeGate
	now  func() time.Time
}

var _ driven.DocumentStore = (*Store)(nil)

// NewStore opens (creating if needed) the store at the specified data
// directory and migrates it. If dataDir is empty, defaults to ~/.keepsake/data.
func NewStore(dataDir string, opts Options) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".keepsake", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	busy := opts.BusyTimeout
	if busy <= 0 {
		busy = DefaultBusyTimeout
	}

	dbPath := filepath.Join(dataDir, "keepsake.db")
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)",
		dbPath, busy.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
		gate: newWriteGate(opts.WriteTimeout, opts.Observer),
		now:  func() time.Time { return time.Now().UTC() },
	}

	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// AcquireWrite waits for the writer lease. Store calls made with the
// returned context reuse the lease.
func (s *Store) AcquireWrite(ctx context.Context) (context.Context, func(), error) {
	return s.gate.acquire(ctx)
}

// Relationships returns a RelationshipStore backed by this store.
func (s *Store) Relationships() driven.RelationshipStore {
	return &relationshipStore{store: s}
}

// TextIndex returns a TextIndex backed by this store's FTS5 table.
func (s *Store) TextIndex() driven.TextIndex {
	return &textIndex{store: s}
}

// Vectors returns a VectorStore backed by this store.
func (s *Store) Vectors() driven.VectorStore {
	return &vectorStore{store: s}
}

// SyncStateStore returns a SyncStateStore backed by this store.
func (s *Store) SyncStateStore() driven.SyncStateStore {
	return &syncStateStore{store: s}
}

// RunStore returns a RunStore backed by this store.
func (s *Store) RunStore() driven.RunStore {
	return &runStore{store: s}
}

// PlanStore returns a PlanStore backed by this store.
func (s *Store) PlanStore() driven.PlanStore {
	return &planStore{store: s}
}

// Checkpoint flushes the WAL into the main database file so that a file
// copy of the database is complete.
func (s *Store) Checkpoint(ctx context.Context) error {
	ctx, release, err := s.gate.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("checkpointing: %w", translateError(err))
	}
	return nil
}

// Stats summarises store contents.
func (s *Store) Stats(ctx context.Context) (domain.StoreStats, error) {
	ctx, release, err := s.gate.acquire(ctx)
	if err != nil {
		return domain.StoreStats{}, err
	}
	defer release()

	stats := domain.StoreStats{ByKind: make(map[domain.Kind]int)}

	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, deleted, COUNT(*) FROM documents GROUP BY kind, deleted
	`)
	if err != nil {
		return stats, fmt.Errorf("counting documents: %w", translateError(err))
	}
	defer rows.Close()

	for rows.Next() {
		var kind string
		var deleted bool
		var n int
		if err := rows.Scan(&kind, &deleted, &n); err != nil {
			return stats, fmt.Errorf("scanning counts: %w", err)
		}
		if deleted {
			stats.Tombstones += n
			continue
		}
		stats.Documents += n
		stats.ByKind[domain.Kind(kind)] += n
	}
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("iterating counts: %w", err)
	}

	counts := []struct {
		query string
		dst   *int
	}{
		{"SELECT COUNT(*) FROM relationships", &stats.Relationships},
		{"SELECT COUNT(*) FROM document_vectors", &stats.Vectors},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
			return stats, fmt.Errorf("counting: %w", translateError(err))
		}
	}

	stats.SchemaVersion, err = s.storedVersion(ctx)
	return stats, err
}

// ==================== Helper Functions ====================

// float32SliceToBytes converts a []float32 to a byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}

// toNanos stores times as UTC unix nanoseconds.
func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func nullNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toNanos(*t), Valid: true}
}

func fromNullNanos(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}

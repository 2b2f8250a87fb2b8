package file

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/keepsake/internal/core/domain"
)

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Settings is the typed view of config.toml. Zero-valued tunables mean
// "use the built-in default" of the component they configure.
type Settings struct {
	DataDir      string `toml:"data_dir"`
	AuditPath    string `toml:"audit_path"`
	SynonymsPath string `toml:"synonyms_path"`

	Store        StoreSettings        `toml:"store"`
	Search       SearchSettings       `toml:"search"`
	Cache        CacheSettings        `toml:"cache"`
	Orchestrator OrchestratorSettings `toml:"orchestrator"`
	Retry        RetrySettings        `toml:"retry"`
	Breaker      BreakerSettings      `toml:"breaker"`
	Embedding    EmbeddingSettings    `toml:"embedding"`
	Backup       BackupSettings       `toml:"backup"`
	Watch        WatchSettings        `toml:"watch"`

	Sources []SourceSettings `toml:"sources"`
}

// StoreSettings tunes the document store.
type StoreSettings struct {
	WriteTimeout Duration `toml:"write_timeout"`
	BusyTimeout  Duration `toml:"busy_timeout"`
}

// SearchSettings tunes hybrid search.
type SearchSettings struct {
	DefaultLimit   int     `toml:"default_limit"`
	LexicalWeight  float64 `toml:"lexical_weight"`
	SemanticWeight float64 `toml:"semantic_weight"`
	Expand         bool    `toml:"expand"`
	MaxVariants    int     `toml:"max_variants"`
}

// CacheSettings tunes the result and embedding cache.
type CacheSettings struct {
	Enabled  bool     `toml:"enabled"`
	TTL      Duration `toml:"ttl"`
	Capacity int64    `toml:"capacity"`
}

// OrchestratorSettings tunes plan execution.
type OrchestratorSettings struct {
	ConfirmationWindow Duration `toml:"confirmation_window"`
}

// RetrySettings is the default retry policy for steps and upserts.
type RetrySettings struct {
	MaxAttempts       int      `toml:"max_attempts"`
	BaseDelay         Duration `toml:"base_delay"`
	MaxDelay          Duration `toml:"max_delay"`
	BackoffMultiplier float64  `toml:"backoff_multiplier"`
}

// BreakerSettings tunes the circuit breakers.
type BreakerSettings struct {
	FailureThreshold int      `toml:"failure_threshold"`
	SuccessThreshold int      `toml:"success_threshold"`
	RecoveryTimeout  Duration `toml:"recovery_timeout"`
}

// EmbeddingSettings configures the Ollama embedding provider.
type EmbeddingSettings struct {
	Enabled           bool     `toml:"enabled"`
	BaseURL           string   `toml:"base_url"`
	Model             string   `toml:"model"`
	Timeout           Duration `toml:"timeout"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	Burst             int      `toml:"burst"`
}

// BackupSettings configures pre-ingest snapshots.
type BackupSettings struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
	Keep    int    `toml:"keep"`
}

// WatchSettings configures the background scheduler.
type WatchSettings struct {
	Interval Duration `toml:"interval"`
	Debounce Duration `toml:"debounce"`
	FullSync bool     `toml:"full_sync"`
}

// SourceSettings is one [[sources]] entry.
type SourceSettings struct {
	Name  string   `toml:"name"`
	Type  string   `toml:"type"`
	Path  string   `toml:"path"`
	Kinds []string `toml:"kinds"`
}

// DefaultSettings returns the settings used when no config file exists,
// rooted at dir (normally ~/.keepsake).
func DefaultSettings(dir string) Settings {
	return Settings{
		DataDir:      filepath.Join(dir, "data"),
		AuditPath:    filepath.Join(dir, "audit.jsonl"),
		SynonymsPath: filepath.Join(dir, "synonyms.yaml"),
		Search: SearchSettings{
			DefaultLimit: 10,
			Expand:       true,
		},
		Cache: CacheSettings{
			Enabled: true,
		},
		Backup: BackupSettings{
			Dir:  filepath.Join(dir, "backups"),
			Keep: 5,
		},
		Watch: WatchSettings{
			Interval: Duration(time.Hour),
			Debounce: Duration(2 * time.Second),
		},
	}
}

// LoadSettings reads the TOML file at path over DefaultSettings for the
// file's directory. A missing file yields the defaults.
func LoadSettings(path string) (Settings, error) {
	path, err := ExpandHome(path)
	if err != nil {
		return Settings{}, err
	}
	settings := DefaultSettings(filepath.Dir(path))

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return settings, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("reading config: %w", err)
	}

	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&settings); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return Settings{}, fmt.Errorf("%w: %s: %s", domain.ErrConfiguration, path, strict.String())
		}
		return Settings{}, fmt.Errorf("%w: %s: %v", domain.ErrConfiguration, path, err)
	}

	if err := settings.expandPaths(); err != nil {
		return Settings{}, err
	}
	if err := settings.Validate(); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

// Validate rejects settings no component could run with.
func (s Settings) Validate() error {
	switch {
	case s.DataDir == "":
		return fmt.Errorf("%w: data_dir is required", domain.ErrConfiguration)
	case s.Search.DefaultLimit < 0:
		return fmt.Errorf("%w: search.default_limit must not be negative", domain.ErrConfiguration)
	case s.Search.LexicalWeight < 0 || s.Search.SemanticWeight < 0:
		return fmt.Errorf("%w: search weights must not be negative", domain.ErrConfiguration)
	case s.Backup.Enabled && s.Backup.Dir == "":
		return fmt.Errorf("%w: backup.dir is required when backups are enabled", domain.ErrConfiguration)
	case s.Watch.Interval < 0 || s.Watch.Debounce < 0:
		return fmt.Errorf("%w: watch durations must not be negative", domain.ErrConfiguration)
	}

	names := make(map[string]bool, len(s.Sources))
	for _, src := range s.SourceConfigs() {
		if err := src.Validate(); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
		}
		if names[src.Name] {
			return fmt.Errorf("%w: duplicate source %q", domain.ErrConfiguration, src.Name)
		}
		names[src.Name] = true
	}
	return nil
}

// SourceConfigs converts the [[sources]] entries.
func (s Settings) SourceConfigs() []domain.SourceConfig {
	out := make([]domain.SourceConfig, len(s.Sources))
	for i, src := range s.Sources {
		kinds := make([]domain.Kind, len(src.Kinds))
		for j, k := range src.Kinds {
			kinds[j] = domain.Kind(strings.ToLower(k))
		}
		out[i] = domain.SourceConfig{Name: src.Name, Type: src.Type, Path: src.Path, Kinds: kinds}
	}
	return out
}

func (s *Settings) expandPaths() error {
	paths := []*string{&s.DataDir, &s.AuditPath, &s.SynonymsPath, &s.Backup.Dir}
	for i := range s.Sources {
		paths = append(paths, &s.Sources[i].Path)
	}
	for _, p := range paths {
		expanded, err := ExpandHome(*p)
		if err != nil {
			return err
		}
		*p = expanded
	}
	return nil
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

package file

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/keepsake/internal/core/domain"
)

const synonymsHeader = `# Keepsake query expansion synonyms.
# Each key maps a query token to the tokens it may be replaced with.
# Edit freely; changes apply on the next command.
`

// SynonymStore loads the query expansion table from a user-editable YAML file.
//
// The store initialises lazily: the file is written from defaults on the
// first Load, not in the constructor.
type SynonymStore struct {
	path     string
	defaults map[string][]string

	mu     sync.Mutex
	cached map[string][]string
}

// NewSynonymStore creates a store for path. defaults seeds a missing file.
func NewSynonymStore(path string, defaults map[string][]string) *SynonymStore {
	return &SynonymStore{path: path, defaults: defaults}
}

// Path returns the synonyms file path.
func (s *SynonymStore) Path() string {
	return s.path
}

// Load returns the synonym table, creating the file from defaults if it
// does not exist. Keys and values are lower-cased; value order is kept.
func (s *SynonymStore) Load() (map[string][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil {
		return s.cached, nil
	}

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		if err := s.writeDefaults(); err != nil {
			return nil, err
		}
		s.cached = normaliseSynonyms(s.defaults)
		return s.cached, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read synonyms: %w", err)
	}

	var table map[string][]string
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("%w: synonyms %s: %v", domain.ErrConfiguration, s.path, err)
	}
	s.cached = normaliseSynonyms(table)
	return s.cached, nil
}

// Reload clears the cached table, forcing a fresh read.
func (s *SynonymStore) Reload() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}

func (s *SynonymStore) writeDefaults() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("create synonyms directory: %w", err)
	}
	body, err := yaml.Marshal(s.defaults)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, append([]byte(synonymsHeader), body...), 0600)
}

func normaliseSynonyms(table map[string][]string) map[string][]string {
	out := make(map[string][]string, len(table))
	for key, values := range table {
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			continue
		}
		for _, v := range values {
			v = strings.ToLower(strings.TrimSpace(v))
			if v != "" && v != key {
				out[key] = append(out[key], v)
			}
		}
	}
	return out
}

package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/keepsake/internal/core/domain"
)

func TestSynonymStore_Load_CreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "synonyms.yaml")
	store := NewSynonymStore(path, map[string][]string{"meeting": {"call", "sync"}})

	// Constructor does no I/O
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))

	table, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"call", "sync"}, table["meeting"])

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "# Keepsake query expansion synonyms.")
	assert.Contains(t, string(raw), "meeting:")
}

func TestSynonymStore_Load_ReadsUserFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "synonyms.yaml")
	content := "Invoice:\n  - Bill\n  - invoice\n  - ' receipt '\n\"  \":\n  - ignored\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	store := NewSynonymStore(path, map[string][]string{"meeting": {"call"}})
	table, err := store.Load()

	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"invoice": {"bill", "receipt"}}, table)
}

func TestSynonymStore_Load_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "synonyms.yaml")
	require.NoError(t, os.WriteFile(path, []byte("meeting: [call\n"), 0600))

	_, err := NewSynonymStore(path, nil).Load()

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestSynonymStore_CachesUntilReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "synonyms.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a: [b]\n"), 0600))
	store := NewSynonymStore(path, nil)

	first, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, first["a"])

	require.NoError(t, os.WriteFile(path, []byte("a: [c]\n"), 0600))
	cached, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, cached["a"])

	store.Reload()
	fresh, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, fresh["a"])
}

func TestSynonymStore_Path(t *testing.T) {
	store := NewSynonymStore("/tmp/synonyms.yaml", nil)
	assert.Equal(t, "/tmp/synonyms.yaml", store.Path())
}

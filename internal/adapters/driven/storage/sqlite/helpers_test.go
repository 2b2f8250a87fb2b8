package sqlite

import (
	"io/fs"
	"testing/fstest"
)

// fstestMap builds an in-memory migrations directory.
type fstestMap map[string]string

func (m fstestMap) FS() fs.FS {
	out := fstest.MapFS{}
	for name, content := range m {
		out[name] = &fstest.MapFile{Data: []byte(content)}
	}
	return out
}

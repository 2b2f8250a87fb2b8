package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSourceConfig_Validate(t *testing.T) {
	valid := SourceConfig{Name: "notes", Type: "filesystem", Path: "/notes"}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name string
		cfg  SourceConfig
	}{
		{"missing name", SourceConfig{Type: "filesystem", Path: "/notes"}},
		{"blank name", SourceConfig{Name: "  ", Type: "filesystem", Path: "/notes"}},
		{"missing type", SourceConfig{Name: "notes", Path: "/notes"}},
		{"missing path", SourceConfig{Name: "notes", Type: "filesystem"}},
		{"invalid kind", SourceConfig{Name: "notes", Type: "filesystem", Path: "/notes", Kinds: []Kind{""}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.cfg.Validate(), ErrValidation)
		})
	}
}

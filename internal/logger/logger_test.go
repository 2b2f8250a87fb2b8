package logger

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func capture(t *testing.T, v bool) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(v)
	t.Cleanup(func() {
		SetVerbose(false)
		SetOutput(os.Stderr)
	})
	return &buf
}

func TestSetVerbose(t *testing.T) {
	capture(t, false)
	assert.False(t, IsVerbose())

	SetVerbose(true)
	assert.True(t, IsVerbose())

	SetVerbose(false)
	assert.False(t, IsVerbose())
}

func TestVerboseLevels(t *testing.T) {
	tests := []struct {
		name string
		log  func(string, ...any)
		want string
	}{
		{"debug", Debug, "[DEBUG] hello world\n"},
		{"info", Info, "[INFO] hello world\n"},
		{"warn", Warn, "[WARN] hello world\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name+" verbose", func(t *testing.T) {
			buf := capture(t, true)
			tt.log("hello %s", "world")
			assert.Equal(t, tt.want, buf.String())
		})
		t.Run(tt.name+" quiet", func(t *testing.T) {
			buf := capture(t, false)
			tt.log("hello %s", "world")
			assert.Empty(t, buf.String())
		})
	}
}

func TestError_AlwaysPrinted(t *testing.T) {
	buf := capture(t, false)
	Error("disk %s", "full")
	assert.Equal(t, "[ERROR] disk full\n", buf.String())
}

func TestSection(t *testing.T) {
	buf := capture(t, true)
	Section("Ingest")
	assert.Equal(t, "\n=== Ingest ===\n", buf.String())

	quiet := capture(t, false)
	Section("Ingest")
	assert.Empty(t, quiet.String())
}

func TestTimed(t *testing.T) {
	buf := capture(t, true)
	Timed("migrate")()
	assert.Contains(t, buf.String(), "[DEBUG] migrate: started\n")
	assert.Contains(t, buf.String(), "[DEBUG] migrate: finished in ")
}

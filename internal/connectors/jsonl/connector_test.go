package jsonl

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/keepsake/internal/core/domain"
)

const sample = `{"kind":"event","id":"evt-1","title":"Standup","body":"daily sync","details":{"starts_at":"2024-03-01T09:00:00Z","ends_at":"2024-03-01T09:15:00Z"},"modified_at":"2024-03-01T08:00:00Z"}

{"kind":"contact","id":"c-1","title":"Ada Lovelace","attributes":{"emails":["ada@example.com"],"rank":3},"details":{"display_name":"Ada Lovelace","emails":["ada@example.com"]}}
not json
{"kind":"note","title":"no id"}
{"kind":"reminder","id":"r-1","title":"Pay invoice","details":{"due_at":"soon"}}
{"kind":"note","id":"n-1","title":"Late note","modified_at":"2024-06-01T00:00:00Z"}
`

func writeSample(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "export.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func collect(c *Connector, since *time.Time, fullSync bool) ([]domain.RawRecord, []error) {
	var recs []domain.RawRecord
	var errs []error
	for rec, err := range c.Fetch(context.Background(), since, fullSync) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		recs = append(recs, rec)
	}
	return recs, errs
}

func TestNew_DefaultKinds(t *testing.T) {
	c := New("export", "/tmp/x.jsonl")
	assert.Equal(t, "export", c.Name())
	assert.Len(t, c.Kinds(), 7)

	c = New("export", "/tmp/x.jsonl", domain.KindEvent)
	assert.Equal(t, []domain.Kind{domain.KindEvent}, c.Kinds())
}

func TestFetch_DecodesRecords(t *testing.T) {
	recs, errs := collect(New("export", writeSample(t, sample)), nil, true)

	require.Len(t, recs, 3)
	require.Len(t, errs, 3)
	for _, err := range errs {
		assert.ErrorIs(t, err, domain.ErrValidation)
	}
	assert.Contains(t, errs[0].Error(), "line 4")

	ev := recs[0]
	assert.Equal(t, domain.KindEvent, ev.Kind)
	assert.Equal(t, "evt-1", ev.SourceID)
	require.NotNil(t, ev.Body)
	assert.Equal(t, "daily sync", *ev.Body)
	details, ok := ev.Extension.(domain.EventDetails)
	require.True(t, ok)
	assert.Equal(t, 15*time.Minute, details.EndsAt.Sub(details.StartsAt))
	assert.Equal(t, time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC), ev.ModifiedAt)

	contact := recs[1]
	assert.Equal(t, []string{"ada@example.com"}, contact.Attributes.Strings("emails"))
	assert.Equal(t, int64(3), contact.Attributes.Int("rank", 0))
	assert.Nil(t, contact.Body)
}

func TestFetch_Since(t *testing.T) {
	path := writeSample(t, sample)
	since := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	recs, _ := collect(New("export", path), &since, false)
	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.SourceID
	}
	// evt-1 is older than since; c-1 has no timestamp and is always yielded.
	assert.Equal(t, []string{"c-1", "n-1"}, ids)

	recs, _ = collect(New("export", path), &since, true)
	assert.Len(t, recs, 3)
}

func TestFetch_MissingFile(t *testing.T) {
	_, errs := collect(New("export", filepath.Join(t.TempDir(), "absent.jsonl")), nil, true)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], domain.ErrConfiguration)
}

func TestFetch_LineTooLong(t *testing.T) {
	long := `{"kind":"note","id":"big","title":"` + strings.Repeat("x", maxLine) + `"}` + "\n"
	_, errs := collect(New("export", writeSample(t, long)), nil, true)
	require.Len(t, errs, 1)
	assert.NotErrorIs(t, errs[0], domain.ErrValidation, "a scanner failure aborts the source")
}

func TestFetch_StopsWhenConsumerStops(t *testing.T) {
	n := 0
	for range New("export", writeSample(t, sample)).Fetch(context.Background(), nil, true) {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestWatch(t *testing.T) {
	path := writeSample(t, sample)
	c := New("export", path)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, err := c.Watch(ctx)
	require.NoError(t, err)

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = os.WriteFile(filepath.Join(filepath.Dir(path), "other.txt"), []byte("x"), 0o644)
		_ = os.WriteFile(path, []byte(sample+"\n"), 0o644)
	}()

	select {
	case name := <-changes:
		assert.Equal(t, "export", name)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for change")
	}

	cancel()
	for range changes {
	}
}

func TestWatch_MissingFile(t *testing.T) {
	_, err := New("export", "/non/existent/export.jsonl").Watch(context.Background())
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

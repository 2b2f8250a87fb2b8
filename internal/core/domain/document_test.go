package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentID_Deterministic(t *testing.T) {
	a := DocumentID("cal", "e1")
	b := DocumentID("cal", "e1")

	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, "doc_"))
	assert.Len(t, a, len("doc_")+32)
}

func TestDocumentID_DistinguishesPairs(t *testing.T) {
	// The separator prevents ("ab","c") and ("a","bc") colliding.
	assert.NotEqual(t, DocumentID("ab", "c"), DocumentID("a", "bc"))
	assert.NotEqual(t, DocumentID("cal", "e1"), DocumentID("mail", "e1"))
}

func TestDocument_BodyText(t *testing.T) {
	doc := Document{}
	assert.Equal(t, "", doc.BodyText())

	body := "hello"
	doc.Body = &body
	assert.Equal(t, "hello", doc.BodyText())
}

func TestUpsertInput_Validate(t *testing.T) {
	tests := []struct {
		name    string
		input   UpsertInput
		wantErr bool
	}{
		{"valid", UpsertInput{Kind: KindNote, SourceSystem: "notes", SourceID: "a"}, false},
		{"missing source system", UpsertInput{Kind: KindNote, SourceID: "a"}, true},
		{"missing source id", UpsertInput{Kind: KindNote, SourceSystem: "notes"}, true},
		{"missing kind", UpsertInput{SourceSystem: "notes", SourceID: "a"}, true},
		{
			"extension kind mismatch",
			UpsertInput{Kind: KindNote, SourceSystem: "cal", SourceID: "a", Extension: EventDetails{}},
			true,
		},
		{
			"matching extension",
			UpsertInput{Kind: KindEvent, SourceSystem: "cal", SourceID: "a", Extension: EventDetails{}},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.input.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidInput)
				assert.ErrorIs(t, err, ErrValidation)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestExtension_Kinds(t *testing.T) {
	assert.Equal(t, KindEvent, EventDetails{}.ExtensionKind())
	assert.Equal(t, KindEmail, EmailDetails{}.ExtensionKind())
	assert.Equal(t, KindMessage, MessageDetails{}.ExtensionKind())
	assert.Equal(t, KindContact, ContactDetails{}.ExtensionKind())
	assert.Equal(t, KindReminder, ReminderDetails{}.ExtensionKind())
}

func TestRunReport_Totals(t *testing.T) {
	report := RunReport{
		Sources: []SourceStats{
			{Source: "a", Processed: 3, Created: 2, Updated: 1},
			{Source: "b", Processed: 1, Errors: 1, Error: "boom"},
		},
	}

	totals := report.Totals()
	assert.Equal(t, 4, totals.Processed)
	assert.Equal(t, 2, totals.Created)
	assert.Equal(t, 1, totals.Errors)
	assert.Equal(t, []string{"b"}, report.FailedSources())
}

func TestUpsertInput_ContentHash(t *testing.T) {
	body := "hello"
	base := UpsertInput{
		Kind:         KindNote,
		SourceSystem: "notes",
		SourceID:     "a.md",
		Title:        "A",
		Body:         &body,
		Attributes:   Attributes{"b": 1, "a": "x"},
	}

	h1, err := base.ContentHash()
	require.NoError(t, err)

	reordered := base
	reordered.Attributes = Attributes{"a": "x", "b": 1}
	h2, err := reordered.ContentHash()
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	edited := base
	other := "changed"
	edited.Body = &other
	h3, err := edited.ContentHash()
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)

	empty := base
	empty.Attributes = Attributes{}
	none := base
	none.Attributes = nil
	he, _ := empty.ContentHash()
	hn, _ := none.ContentHash()
	assert.Equal(t, he, hn)
}

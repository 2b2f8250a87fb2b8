package domain

import (
	"encoding/json"
	"time"
)

// Extension is a kind-specific record stored 1:1 with its Document.
// It never exists without a parent Document and is written in the same
// transaction.
type Extension interface {
	ExtensionKind() Kind
}

// EventDetails holds calendar event fields.
type EventDetails struct {
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
	Location string    `json:"location,omitempty"`
	AllDay   bool      `json:"all_day,omitempty"`
}

// ExtensionKind implements Extension.
func (EventDetails) ExtensionKind() Kind { return KindEvent }

// EmailDetails holds mail envelope fields.
type EmailDetails struct {
	Sender     string    `json:"sender"`
	Recipients []string  `json:"recipients,omitempty"`
	ThreadID   string    `json:"thread_id,omitempty"`
	SentAt     time.Time `json:"sent_at"`
}

// ExtensionKind implements Extension.
func (EmailDetails) ExtensionKind() Kind { return KindEmail }

// MessageDetails holds chat message fields.
type MessageDetails struct {
	Sender         string    `json:"sender"`
	ConversationID string    `json:"conversation_id,omitempty"`
	SentAt         time.Time `json:"sent_at"`
}

// ExtensionKind implements Extension.
func (MessageDetails) ExtensionKind() Kind { return KindMessage }

// ContactDetails holds address book fields.
type ContactDetails struct {
	DisplayName string   `json:"display_name"`
	Emails      []string `json:"emails,omitempty"`
	Phones      []string `json:"phones,omitempty"`
}

// ExtensionKind implements Extension.
func (ContactDetails) ExtensionKind() Kind { return KindContact }

// ReminderDetails holds reminder fields.
type ReminderDetails struct {
	DueAt     *time.Time `json:"due_at,omitempty"`
	Completed bool       `json:"completed,omitempty"`
}

// ExtensionKind implements Extension.
func (ReminderDetails) ExtensionKind() Kind { return KindReminder }

// DecodeExtension decodes the JSON form of the extension record for kind.
// Kinds without an extension table, and empty input, yield nil.
func DecodeExtension(kind Kind, data []byte) (Extension, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}

	var err error
	var ext Extension
	switch kind {
	case KindEvent:
		var e EventDetails
		err = json.Unmarshal(data, &e)
		ext = e
	case KindEmail:
		var e EmailDetails
		err = json.Unmarshal(data, &e)
		ext = e
	case KindMessage:
		var e MessageDetails
		err = json.Unmarshal(data, &e)
		ext = e
	case KindContact:
		var e ContactDetails
		err = json.Unmarshal(data, &e)
		ext = e
	case KindReminder:
		var e ReminderDetails
		err = json.Unmarshal(data, &e)
		ext = e
	default:
		return nil, nil
	}
	if err != nil {
		return nil, NewValidationError("%s extension: %v", kind, err)
	}
	return ext, nil
}

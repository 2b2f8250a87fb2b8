package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/custodia-labs/keepsake/internal/core/domain"
)

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// extensionTables maps kinds to their 1:1 side table.
var extensionTables = map[domain.Kind]string{
	domain.KindEvent:    "event_details",
	domain.KindEmail:    "email_details",
	domain.KindMessage:  "message_details",
	domain.KindContact:  "contact_details",
	domain.KindReminder: "reminder_details",
}

// deleteExtension removes the extension record a document holds for kind.
func deleteExtension(ctx context.Context, tx execer, id string, kind domain.Kind) error {
	table, ok := extensionTables[kind]
	if !ok {
		return nil
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE document_id = ?", id); err != nil {
		return fmt.Errorf("deleting %s: %w", table, translateError(err))
	}
	return nil
}

// writeExtension replaces the extension record of a document. A nil
// extension removes any existing record for the kind.
func writeExtension(ctx context.Context, tx execer, id string, kind domain.Kind, ext domain.Extension) error {
	table, ok := extensionTables[kind]
	if !ok {
		if ext != nil {
			return domain.NewValidationError("kind %q has no extension record", kind)
		}
		return nil
	}

	var err error
	switch e := derefExtension(ext).(type) {
	case nil:
		_, err = tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE document_id = ?", id)

	case domain.EventDetails:
		_, err = tx.ExecContext(ctx, `
			INSERT INTO event_details (document_id, starts_at, ends_at, location, all_day)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(document_id) DO UPDATE SET
				starts_at = excluded.starts_at,
				ends_at = excluded.ends_at,
				location = excluded.location,
				all_day = excluded.all_day
		`, id, toNanos(e.StartsAt), toNanos(e.EndsAt), e.Location, e.AllDay)

	case domain.EmailDetails:
		var recipients []byte
		recipients, err = json.Marshal(nonNil(e.Recipients))
		if err != nil {
			return fmt.Errorf("marshalling recipients: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO email_details (document_id, sender, recipients, thread_id, sent_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(document_id) DO UPDATE SET
				sender = excluded.sender,
				recipients = excluded.recipients,
				thread_id = excluded.thread_id,
				sent_at = excluded.sent_at
		`, id, e.Sender, string(recipients), e.ThreadID, toNanos(e.SentAt))

	case domain.MessageDetails:
		_, err = tx.ExecContext(ctx, `
			INSERT INTO message_details (document_id, sender, conversation_id, sent_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(document_id) DO UPDATE SET
				sender = excluded.sender,
				conversation_id = excluded.conversation_id,
				sent_at = excluded.sent_at
		`, id, e.Sender, e.ConversationID, toNanos(e.SentAt))

	case domain.ContactDetails:
		var emails, phones []byte
		if emails, err = json.Marshal(nonNil(e.Emails)); err != nil {
			return fmt.Errorf("marshalling emails: %w", err)
		}
		if phones, err = json.Marshal(nonNil(e.Phones)); err != nil {
			return fmt.Errorf("marshalling phones: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO contact_details (document_id, display_name, emails, phones)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(document_id) DO UPDATE SET
				display_name = excluded.display_name,
				emails = excluded.emails,
				phones = excluded.phones
		`, id, e.DisplayName, string(emails), string(phones))

	case domain.ReminderDetails:
		_, err = tx.ExecContext(ctx, `
			INSERT INTO reminder_details (document_id, due_at, completed)
			VALUES (?, ?, ?)
			ON CONFLICT(document_id) DO UPDATE SET
				due_at = excluded.due_at,
				completed = excluded.completed
		`, id, nullNanos(e.DueAt), e.Completed)

	default:
		return domain.NewValidationError("unsupported extension type %T", ext)
	}

	if err != nil {
		return fmt.Errorf("writing %s: %w", table, translateError(err))
	}
	return nil
}

// readExtension loads the extension record of a document, or nil if it has none.
func readExtension(ctx context.Context, db querier, id string, kind domain.Kind) (domain.Extension, error) {
	var ext domain.Extension
	var err error

	switch kind {
	case domain.KindEvent:
		var starts, ends int64
		var e domain.EventDetails
		err = db.QueryRowContext(ctx,
			"SELECT starts_at, ends_at, location, all_day FROM event_details WHERE document_id = ?", id,
		).Scan(&starts, &ends, &e.Location, &e.AllDay)
		e.StartsAt, e.EndsAt = fromNanos(starts), fromNanos(ends)
		ext = e

	case domain.KindEmail:
		var sent int64
		var recipients string
		var e domain.EmailDetails
		err = db.QueryRowContext(ctx,
			"SELECT sender, recipients, thread_id, sent_at FROM email_details WHERE document_id = ?", id,
		).Scan(&e.Sender, &recipients, &e.ThreadID, &sent)
		if err == nil {
			err = unmarshalStrings(recipients, &e.Recipients)
		}
		e.SentAt = fromNanos(sent)
		ext = e

	case domain.KindMessage:
		var sent int64
		var e domain.MessageDetails
		err = db.QueryRowContext(ctx,
			"SELECT sender, conversation_id, sent_at FROM message_details WHERE document_id = ?", id,
		).Scan(&e.Sender, &e.ConversationID, &sent)
		e.SentAt = fromNanos(sent)
		ext = e

	case domain.KindContact:
		var emails, phones string
		var e domain.ContactDetails
		err = db.QueryRowContext(ctx,
			"SELECT display_name, emails, phones FROM contact_details WHERE document_id = ?", id,
		).Scan(&e.DisplayName, &emails, &phones)
		if err == nil {
			err = unmarshalStrings(emails, &e.Emails)
		}
		if err == nil {
			err = unmarshalStrings(phones, &e.Phones)
		}
		ext = e

	case domain.KindReminder:
		var due sql.NullInt64
		var e domain.ReminderDetails
		err = db.QueryRowContext(ctx,
			"SELECT due_at, completed FROM reminder_details WHERE document_id = ?", id,
		).Scan(&due, &e.Completed)
		e.DueAt = fromNullNanos(due)
		ext = e

	default:
		return nil, nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s extension: %w", kind, translateError(err))
	}
	return ext, nil
}

// derefExtension accepts extensions passed by pointer.
func derefExtension(ext domain.Extension) domain.Extension {
	switch e := ext.(type) {
	case *domain.EventDetails:
		return *e
	case *domain.EmailDetails:
		return *e
	case *domain.MessageDetails:
		return *e
	case *domain.ContactDetails:
		return *e
	case *domain.ReminderDetails:
		return *e
	}
	return ext
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func unmarshalStrings(raw string, dst *[]string) error {
	if raw == "" || raw == "[]" || raw == jsonNull {
		*dst = nil
		return nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("unmarshaling list: %w", err)
	}
	return nil
}

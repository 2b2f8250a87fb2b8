package eml

import (
	"bytes"
	"context"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"strings"

	"github.com/custodia-labs/keepsake/internal/core/domain"
	"github.com/custodia-labs/keepsake/internal/core/ports/driven"
	"github.com/custodia-labs/keepsake/internal/normalisers"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles EML (email) documents.
type Normaliser struct{}

// New creates a new EML normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"message/rfc822"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50 // Generic MIME normaliser
}

// Kinds returns the kinds this normaliser produces.
func (n *Normaliser) Kinds() []domain.Kind {
	return []domain.Kind{domain.KindEmail}
}

// Normalise converts an EML file to an email record with envelope details.
func (n *Normaliser) Normalise(_ context.Context, in driven.NormaliseInput) (domain.RawRecord, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(in.Content))
	if err != nil {
		return domain.RawRecord{}, domain.NewValidationError("parse %s: %v", in.Path, err)
	}

	subject := decodeHeader(msg.Header.Get("Subject"))
	from := decodeHeader(msg.Header.Get("From"))

	body, err := extractBody(msg)
	if err != nil {
		return domain.RawRecord{}, err
	}
	body = strings.TrimSpace(body)

	details := domain.EmailDetails{
		Sender:     firstAddress(from),
		Recipients: addresses(msg.Header, "To", "Cc"),
		ThreadID:   threadID(msg.Header),
	}
	if sent, err := msg.Header.Date(); err == nil {
		details.SentAt = sent.UTC()
	}

	title := subject
	if title == "" {
		title = normalisers.TitleFromPath(in.Path)
	}

	attrs := domain.Attributes{
		"mime_type": in.MIMEType,
		"format":    "eml",
	}
	if from != "" {
		attrs["from"] = from
	}
	if id := strings.Trim(msg.Header.Get("Message-Id"), "<> "); id != "" {
		attrs["message_id"] = id
	}

	return domain.RawRecord{
		Kind:       domain.KindEmail,
		Title:      title,
		Body:       &body,
		Attributes: attrs,
		Extension:  details,
	}, nil
}

// firstAddress returns the lower-cased bare address of a From-style header.
func firstAddress(header string) string {
	if header == "" {
		return ""
	}
	addr, err := mail.ParseAddress(header)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(header))
	}
	return strings.ToLower(addr.Address)
}

// addresses collects the bare addresses of the named headers.
func addresses(h mail.Header, keys ...string) []string {
	var out []string
	for _, key := range keys {
		list, err := h.AddressList(key)
		if err != nil {
			continue
		}
		for _, a := range list {
			out = append(out, strings.ToLower(a.Address))
		}
	}
	return out
}

// threadID is the root of the References chain, then In-Reply-To, then
// the message's own id.
func threadID(h mail.Header) string {
	if refs := strings.Fields(h.Get("References")); len(refs) > 0 {
		return strings.Trim(refs[0], "<>")
	}
	if reply := strings.TrimSpace(h.Get("In-Reply-To")); reply != "" {
		return strings.Trim(reply, "<>")
	}
	return strings.Trim(h.Get("Message-Id"), "<> ")
}

// decodeHeader decodes RFC 2047 encoded headers.
func decodeHeader(header string) string {
	if header == "" {
		return ""
	}
	dec := new(mime.WordDecoder)
	decoded, err := dec.DecodeHeader(header)
	if err != nil {
		return header // Return original if decoding fails
	}
	return decoded
}

// extractBody extracts the text content from an email message.
func extractBody(msg *mail.Message) (string, error) {
	contentType := msg.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		// If we can't parse content type, try to read as plain text
		body, readErr := io.ReadAll(msg.Body)
		if readErr != nil {
			return "", domain.NewValidationError("read body: %v", readErr)
		}
		return string(body), nil
	}

	// Handle multipart messages
	if strings.HasPrefix(mediaType, "multipart/") {
		return extractMultipartBody(msg.Body, params["boundary"])
	}

	// Handle plain text or HTML
	body, err := io.ReadAll(msg.Body)
	if err != nil {
		return "", domain.NewValidationError("read body: %v", err)
	}

	if mediaType == "text/html" {
		return stripHTMLTags(string(body)), nil
	}

	return string(body), nil
}

// extractMultipartBody extracts text from multipart messages.
func extractMultipartBody(r io.Reader, boundary string) (string, error) {
	if boundary == "" {
		return "", nil
	}

	mr := multipart.NewReader(r, boundary)
	var textParts []string
	var htmlParts []string

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		partContentType := part.Header.Get("Content-Type")
		mediaType, params, parseErr := mime.ParseMediaType(partContentType)
		if parseErr != nil {
			mediaType = "application/octet-stream"
		}

		content, readErr := io.ReadAll(part)
		part.Close()
		if readErr != nil {
			continue
		}

		switch {
		case mediaType == "text/plain":
			textParts = append(textParts, string(content))
		case mediaType == "text/html":
			htmlParts = append(htmlParts, stripHTMLTags(string(content)))
		case strings.HasPrefix(mediaType, "multipart/"):
			// Recursively handle nested multipart
			nested, nestedErr := extractMultipartBody(bytes.NewReader(content), params["boundary"])
			if nestedErr == nil && nested != "" {
				textParts = append(textParts, nested)
			}
		}
	}

	// Prefer plain text over HTML
	if len(textParts) > 0 {
		return strings.Join(textParts, "\n"), nil
	}
	if len(htmlParts) > 0 {
		return strings.Join(htmlParts, "\n"), nil
	}

	return "", nil
}

// stripHTMLTags removes HTML tags for basic text extraction.
func stripHTMLTags(html string) string {
	var result strings.Builder
	inTag := false

	for _, r := range html {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			result.WriteRune(r)
		}
	}

	// Clean up whitespace
	text := result.String()
	lines := strings.Split(text, "\n")
	var cleaned []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}

	return strings.Join(cleaned, "\n")
}

// Package eml extracts text from RFC 822 email uploads, such as clarification
// threads exported from a buyer's tender portal.
package eml

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"

	"github.com/custodia-labs/autorfp/internal/core/domain"
	"github.com/custodia-labs/autorfp/internal/core/ports/driven"
	"github.com/custodia-labs/autorfp/internal/normalisers/html"
	"github.com/custodia-labs/autorfp/internal/normalisers/title"
)

// maxNesting bounds recursion into nested multipart bodies.
const maxNesting = 8

// Ensure Extractor implements the interface.
var _ driven.TextExtractor = (*Extractor)(nil)

// Extractor handles email uploads.
type Extractor struct{}

// New creates a new email extractor.
func New() *Extractor {
	return &Extractor{}
}

// SupportedMIMETypes returns the MIME types this extractor handles.
func (e *Extractor) SupportedMIMETypes() []string {
	return []string{"message/rfc822"}
}

// Priority returns the selection priority.
func (e *Extractor) Priority() int {
	return 50
}

// Extract renders the headers that matter followed by the message body.
// Plain text parts are preferred over HTML; attachments are listed by name
// in metadata but not read.
func (e *Extractor) Extract(_ context.Context, upload domain.Upload) (*domain.Extraction, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(upload.Content))
	if err != nil {
		return nil, &domain.InvalidInputError{Field: upload.Filename, Reason: "not an email message"}
	}

	subject := decodeHeader(msg.Header.Get("Subject"))
	headers := []struct{ name, value string }{
		{"From", decodeHeader(msg.Header.Get("From"))},
		{"To", decodeHeader(msg.Header.Get("To"))},
		{"Date", msg.Header.Get("Date")},
		{"Subject", subject},
	}

	var b body
	if err := b.read(msg.Body, msg.Header.Get("Content-Type"), msg.Header.Get("Content-Transfer-Encoding"), 0); err != nil {
		return nil, fmt.Errorf("eml: %s: %w", upload.Filename, err)
	}

	metadata := map[string]any{
		"mime_type": upload.MIMEType,
		"format":    "eml",
	}
	var content strings.Builder
	for _, h := range headers {
		if h.value == "" {
			continue
		}
		fmt.Fprintf(&content, "%s: %s\n", h.name, h.value)
		metadata[strings.ToLower(h.name)] = h.value
	}
	if len(b.attachments) > 0 {
		metadata["attachments"] = b.attachments
	}
	content.WriteString("\n")
	content.WriteString(b.text())

	return &domain.Extraction{
		Title:    title.Or(subject, upload.Filename),
		Content:  strings.TrimSpace(content.String()),
		Metadata: metadata,
	}, nil
}

// decodeHeader decodes RFC 2047 encoded words, keeping the raw value on failure.
func decodeHeader(header string) string {
	if header == "" {
		return ""
	}
	decoded, err := new(mime.WordDecoder).DecodeHeader(header)
	if err != nil {
		return header
	}
	return decoded
}

// body collects the readable parts of a message.
type body struct {
	plain       []string
	html        []string
	attachments []string
}

func (b *body) text() string {
	if len(b.plain) > 0 {
		return strings.Join(b.plain, "\n\n")
	}
	return strings.Join(b.html, "\n\n")
}

func (b *body) read(r io.Reader, contentType, encoding string, depth int) error {
	if contentType == "" {
		contentType = "text/plain"
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		if depth >= maxNesting || params["boundary"] == "" {
			return nil
		}
		return b.readMultipart(r, params["boundary"], depth)
	}

	data, err := io.ReadAll(decodeTransfer(r, encoding))
	if err != nil {
		return fmt.Errorf("reading %s body: %w", mediaType, err)
	}

	switch mediaType {
	case "text/plain":
		if text := strings.TrimSpace(strings.ReplaceAll(string(data), "\r\n", "\n")); text != "" {
			b.plain = append(b.plain, text)
		}
	case "text/html":
		page, err := html.Parse(bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("parsing html body: %w", err)
		}
		if page.Text != "" {
			b.html = append(b.html, page.Text)
		}
	}
	return nil
}

func (b *body) readMultipart(r io.Reader, boundary string, depth int) error {
	mr := multipart.NewReader(r, boundary)
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			// Truncated multipart bodies keep what was read so far.
			return nil
		}

		if name := part.FileName(); name != "" {
			b.attachments = append(b.attachments, decodeHeader(name))
			part.Close()
			continue
		}
		// multipart.Reader already removes quoted-printable encoding.
		err = b.read(part, part.Header.Get("Content-Type"), part.Header.Get("Content-Transfer-Encoding"), depth+1)
		part.Close()
		if err != nil {
			return err
		}
	}
}

func decodeTransfer(r io.Reader, encoding string) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, r)
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	default:
		return r
	}
}

package domain

import "time"

// ProcessingStatus is the ingestion state of a document.
type ProcessingStatus string

// Document processing statuses.
const (
	ProcessingPending    ProcessingStatus = "pending"
	ProcessingProcessing ProcessingStatus = "processing"
	ProcessingCompleted  ProcessingStatus = "completed"
	ProcessingFailed     ProcessingStatus = "failed"
)

// Document is an uploaded procurement file belonging to exactly one workflow.
// It is immutable once Status is completed.
type Document struct {
	// ID is the unique identifier for the document.
	ID string

	// WorkflowID links to the owning Workflow.
	WorkflowID string

	// Filename is the original file name.
	Filename string

	// StoragePath is where the upload was read from.
	StoragePath string

	// Size is the upload size in bytes.
	Size int64

	// MIMEType is the content type (e.g., "text/markdown").
	MIMEType string

	// Status is the ingestion state.
	Status ProcessingStatus

	// Content is the extracted plain text.
	Content string

	// FileMetadata holds extractor-provided metadata (title, author, headers).
	FileMetadata map[string]any

	// ExtractedData holds the structured output of the ingestion agent.
	ExtractedData map[string]any

	// CreatedAt is when the document was uploaded.
	CreatedAt time.Time

	// UpdatedAt is when the document was last updated.
	UpdatedAt time.Time
}

// IsFinal returns true once the document can no longer be modified.
func (d *Document) IsFinal() bool {
	return d.Status == ProcessingCompleted
}

// Upload is one file submitted with a new workflow.
type Upload struct {
	// Filename is the original file name.
	Filename string

	// Path is the local path the content came from, if any.
	Path string

	// MIMEType is the content type. Detected from the extension when empty.
	MIMEType string

	// Content is the raw file bytes.
	Content []byte
}

// Validate checks that the upload carries a name and some content.
func (u Upload) Validate() error {
	if u.Filename == "" {
		return &InvalidInputError{Field: "filename", Reason: "must not be empty"}
	}
	if len(u.Content) == 0 {
		return &InvalidInputError{Field: u.Filename, Reason: "file is empty"}
	}
	return nil
}

// Extraction is the plain text recovered from an upload.
type Extraction struct {
	// Title is a best-effort document title.
	Title string

	// Content is the extracted text.
	Content string

	// Metadata contains format-specific key-value pairs.
	Metadata map[string]any
}

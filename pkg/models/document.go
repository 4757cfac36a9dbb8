package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Document file types accepted for upload.
const (
	FileTypePDF  = "pdf"
	FileTypeDOCX = "docx"
	FileTypeTXT  = "txt"
	FileTypeDOC  = "doc"
)

// Document status values: uploaded → processing → processed | failed.
const (
	DocumentStatusUploaded   = "uploaded"
	DocumentStatusProcessing = "processing"
	DocumentStatusProcessed  = "processed"
	DocumentStatusFailed     = "failed"
)

// Metadata keys the learning pipeline reads.
const (
	MetaKeySource              = "source"
	MetaKeyProcessedExternally = "processed_externally"

	SourceGoogleDrive = "google_drive"
)

// Document is an uploaded or imported knowledge source.
type Document struct {
	ID            uuid.UUID  `json:"id"`
	Title         string     `json:"title"`
	Filename      string     `json:"filename"`
	FilePath      string     `json:"file_path"`
	FileType      string     `json:"file_type"`
	FileSize      int64      `json:"file_size"`
	Status        string     `json:"status"`
	ProcessedAt   *time.Time `json:"processed_at"`
	ExtractedData JSONMap    `json:"extracted_data"`
	Metadata      JSONMap    `json:"metadata"`
	UploadedBy    *string    `json:"uploaded_by"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	KnowledgeEntries []*KnowledgeEntry `json:"knowledge_entries,omitempty"`
}

// ProcessedExternally reports whether an external downloader already ran extraction,
// in which case the engine must not call the processing service again.
func (d *Document) ProcessedExternally() bool {
	if d.Metadata.Bool(MetaKeyProcessedExternally) {
		return true
	}
	return d.Metadata.String(MetaKeySource) == SourceGoogleDrive
}

// ValidFileType reports whether t (case-insensitive) is an accepted document type.
func ValidFileType(t string) bool {
	switch strings.ToLower(t) {
	case FileTypePDF, FileTypeDOCX, FileTypeTXT, FileTypeDOC:
		return true
	}
	return false
}

// DocumentFilters narrows document listings.
type DocumentFilters struct {
	Page
	Status   string
	FileType string
	Search   string
}

// DocumentLearningResult is what Process reports back to the caller.
type DocumentLearningResult struct {
	DocumentID    uuid.UUID `json:"document_id"`
	Processed     bool      `json:"processed"`
	ExtractedData JSONMap   `json:"extracted_data,omitempty"`
	Learning      JSONMap   `json:"learning,omitempty"`
}

// Package domain holds the entities shared by the ingestion and retrieval layers.
package domain

import "time"

// Content types accepted for upload.
const (
	ContentTypePDF      = "application/pdf"
	ContentTypeText     = "text/plain"
	ContentTypeMarkdown = "text/markdown"
)

// Document is a registry entry for one uploaded file.
// It is immutable once created; the only transition is deletion.
type Document struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"file_type"`
	Size        int64     `json:"file_size"`
	ChunkCount  int       `json:"chunk_count"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// Source is an attribution shown next to an answer.
type Source struct {
	Document   string `json:"document"`
	DocumentID string `json:"document_id,omitempty"`
	Excerpt    string `json:"excerpt"`
}

// ChatRecord is one question/answer exchange in a user's append-only chat log.
type ChatRecord struct {
	ID        string    `json:"id"`
	UserID    string    `json:"-"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Sources   []Source  `json:"sources"`
	CreatedAt time.Time `json:"created_at"`
}

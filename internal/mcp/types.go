// Package mcp exposes the document QA service as MCP tools.
package mcp

import "time"

// AskDocumentsInput defines the input parameters for the ask_documents tool.
type AskDocumentsInput struct {
	// Question is answered from the caller's documents.
	Question string `json:"question" jsonschema:"The question to answer from the uploaded documents"`
	// DocumentIDs restricts retrieval to these documents. Empty means all.
	DocumentIDs []string `json:"document_ids,omitempty" jsonschema:"Optional document ids to restrict the search to; omit to search every document"`
}

// AskDocumentsOutput contains the answer and its sources.
type AskDocumentsOutput struct {
	Answer  string         `json:"answer"`
	Sources []SourceOutput `json:"sources"`
	// Message explains why no answer was produced (e.g. "no documents uploaded yet").
	Message string `json:"message,omitempty"`
	// ErrorKind classifies Message for programmatic callers.
	ErrorKind string `json:"error_kind,omitempty"`
}

// SourceOutput attributes part of an answer to a document.
type SourceOutput struct {
	Document   string `json:"document"`
	DocumentID string `json:"document_id"`
	Excerpt    string `json:"excerpt"`
}

// ListDocumentsInput takes no parameters.
type ListDocumentsInput struct{}

// ListDocumentsOutput lists the caller's documents, newest first.
type ListDocumentsOutput struct {
	Documents []DocumentOutput `json:"documents"`
	Count     int              `json:"count"`
}

// DocumentOutput describes one uploaded document.
type DocumentOutput struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	ChunkCount  int       `json:"chunk_count"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// DeleteDocumentInput defines the input parameters for the delete_document tool.
type DeleteDocumentInput struct {
	DocumentID string `json:"document_id" jsonschema:"Id of the document to delete"`
}

// DeleteDocumentOutput reports whether the document was deleted.
type DeleteDocumentOutput struct {
	Deleted bool   `json:"deleted"`
	Message string `json:"message,omitempty"`
}

// ChatHistoryInput defines the input parameters for the chat_history tool.
type ChatHistoryInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of conversations to return (default 50)"`
}

// ChatHistoryOutput lists past questions and answers, newest first.
type ChatHistoryOutput struct {
	Chats []ChatOutput `json:"chats"`
	Count int          `json:"count"`
}

// ChatOutput is one past exchange.
type ChatOutput struct {
	ID        string         `json:"id"`
	Question  string         `json:"question"`
	Answer    string         `json:"answer"`
	Sources   []SourceOutput `json:"sources"`
	CreatedAt time.Time      `json:"created_at"`
}

package domain

import "errors"

// Input rejection. Nothing is persisted when ingestion fails with one of these.
var (
	// ErrUnsupportedType indicates a content type the extractor cannot read.
	ErrUnsupportedType = errors.New("only PDF, TXT and Markdown files are supported")

	// ErrFileTooLarge indicates an upload above the configured size limit.
	ErrFileTooLarge = errors.New("file size exceeds upload limit")

	// ErrEmptyDocument indicates extraction produced no indexable text.
	ErrEmptyDocument = errors.New("no text could be extracted from document")

	// ErrDocumentRejected indicates a corrupt or unreadable file.
	ErrDocumentRejected = errors.New("document rejected")

	// ErrInvalidInput indicates a malformed request (blank question, missing filename).
	ErrInvalidInput = errors.New("invalid input")
)

// Candidate resolution.
var (
	// ErrNoDocuments indicates the user owns no documents at all.
	ErrNoDocuments = errors.New("no documents uploaded yet")

	// ErrNoCandidates indicates none of the requested document ids resolved.
	ErrNoCandidates = errors.New("no documents available")

	// ErrDocumentNotFound indicates a document id the caller does not own or that was deleted.
	ErrDocumentNotFound = errors.New("document not found")
)

// ErrNoRelevantInfo indicates every candidate was searched (or skipped) and nothing came back.
var ErrNoRelevantInfo = errors.New("no relevant information found")

// ErrModelUnavailable indicates the embedding or generation model failed to initialise.
var ErrModelUnavailable = errors.New("model service unavailable")

// Kind groups errors by what the caller can do about them.
type Kind int

const (
	KindInternal Kind = iota
	KindInputRejected
	KindNotFound
	KindNoCandidates
	KindNoRelevantInfo
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindInputRejected:
		return "input_rejected"
	case KindNotFound:
		return "not_found"
	case KindNoCandidates:
		return "no_candidates"
	case KindNoRelevantInfo:
		return "no_relevant_info"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// KindOf classifies err. ErrNoCandidates wins over ErrDocumentNotFound when both are wrapped.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrModelUnavailable):
		return KindUnavailable
	case errors.Is(err, ErrNoDocuments), errors.Is(err, ErrNoCandidates):
		return KindNoCandidates
	case errors.Is(err, ErrDocumentNotFound):
		return KindNotFound
	case errors.Is(err, ErrNoRelevantInfo):
		return KindNoRelevantInfo
	case errors.Is(err, ErrUnsupportedType),
		errors.Is(err, ErrFileTooLarge),
		errors.Is(err, ErrEmptyDocument),
		errors.Is(err, ErrDocumentRejected),
		errors.Is(err, ErrInvalidInput):
		return KindInputRejected
	default:
		return KindInternal
	}
}

// UserMessage returns the message shown to an end user for err.
// Internal failures are not echoed back.
func UserMessage(err error) string {
	sentinels := []error{
		ErrModelUnavailable, ErrNoDocuments, ErrNoCandidates, ErrDocumentNotFound,
		ErrNoRelevantInfo, ErrUnsupportedType, ErrFileTooLarge, ErrEmptyDocument,
		ErrDocumentRejected, ErrInvalidInput,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

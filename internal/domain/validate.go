package domain

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	minNameLength = 3
	maxNameLength = 128
	maxContentBytes = 50 * 1024 * 1024
	minMessageLength = 1
	maxMessageLength = 16_384
)

// AllowedContentTypes is the closed set of document content types the
// ingestion pipeline's Parse stage accepts.
var AllowedContentTypes = map[string]bool{
	"application/pdf":    true,
	"text/plain":         true,
	"text/markdown":      true,
	"text/html":          true,
	"application/json":   true,
	"text/csv":           true,
}

// injectionPatterns rejects prompt/query fragments that look like an attempt
// to manipulate the underlying stores or the LLM's instructions rather than
// ask a question.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(DROP|DELETE|INSERT|UPDATE|ALTER|EXEC|UNION)\b.*\b(TABLE|FROM|INTO|SELECT|SET)\b`),
	regexp.MustCompile(`(?i)(--|;)\s*(DROP|DELETE|SELECT)`),
	regexp.MustCompile(`(?i)\$\{.*\}`),
	regexp.MustCompile(`(?i)\{\s*"\$[a-z]+"\s*:`),
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+instructions`),
}

// ValidateKnowledgeBaseName validates a KnowledgeBase's display name.
func ValidateKnowledgeBaseName(name string) error {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	if n < minNameLength {
		return NewValidationError("name", name, ErrNameTooShort)
	}
	if n > maxNameLength {
		return NewValidationError("name", name, ErrNameTooLong)
	}
	return nil
}

// ValidateDocumentUpload validates the inbound parameters for IngestDocument
// before the Parse stage ever runs.
func ValidateDocumentUpload(contentType string, size int64) error {
	if !AllowedContentTypes[contentType] {
		return NewValidationError("content_type", contentType, ErrUnsupportedContentType)
	}
	if size <= 0 {
		return NewValidationError("size", "0", ErrInvalidDocument)
	}
	if size > maxContentBytes {
		return NewValidationError("size", "", ErrContentTooLarge)
	}
	return nil
}

// ValidateMessageText validates a user-authored conversation turn.
func ValidateMessageText(text string) error {
	trimmed := strings.TrimSpace(text)
	n := utf8.RuneCountInString(trimmed)
	if n < minMessageLength {
		return NewValidationError("content", text, ErrMessageEmpty)
	}
	if n > maxMessageLength {
		return NewValidationError("content", "", ErrContentTooLarge)
	}
	for _, pat := range injectionPatterns {
		if pat.MatchString(trimmed) {
			return NewValidationError("content", trimmed, ErrMessageInjection)
		}
	}
	return nil
}

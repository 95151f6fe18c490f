// Package extraction turns stored document bytes into plain text using a
// hosted document-understanding model.
package extraction

import (
	"context"
	"errors"
)

// ExtractionPrompt is the fixed instruction sent alongside every document
const ExtractionPrompt = "Extract all of the text contained in this document. When extracting multiple lines, separate them using \\n."

// DefaultMimeType is sent when the stored file has no usable content type
const DefaultMimeType = "application/pdf"

// ErrNoText is returned when the model answered without any text
var ErrNoText = errors.New("extraction returned no text")

// Extractor extracts text from document bytes
type Extractor interface {
	ExtractText(ctx context.Context, data []byte, mimeType string) (string, error)
}

func documentMimeType(mimeType string) string {
	if mimeType == "" || mimeType == "application/octet-stream" {
		return DefaultMimeType
	}
	return mimeType
}

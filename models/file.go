package models

import (
	"time"

	"github.com/google/uuid"
)

// File represents an uploaded document and its extraction state
type File struct {
	ID            uuid.UUID `json:"id"`
	OwnerID       uuid.UUID `json:"owner_id"`
	StorageKey    string    `json:"storage_key"`
	OriginalName  string    `json:"original_name"`
	MimeType      string    `json:"mime_type"`
	Size          int64     `json:"size"`
	URL           string    `json:"url"`
	ExtractedText *string   `json:"extracted_text"` // nil until enrichment succeeds
	CreatedAt     time.Time `json:"created_at"`
}

package service

import "errors"

var (
	// ErrValidation marks uploads rejected before anything is stored
	ErrValidation = errors.New("invalid upload")
	// ErrStorage marks failed object store or record store operations
	ErrStorage = errors.New("storage failure")
	// ErrNotFound marks files that do not exist or belong to another owner
	ErrNotFound = errors.New("file not found")
	// ErrEnrichment marks background extraction runs that produced no text.
	// It is only returned by Enrich and never reaches upload callers.
	ErrEnrichment = errors.New("enrichment failed")
)

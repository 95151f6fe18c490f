package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"paggo-backend/events"
	"paggo-backend/extraction"
	"paggo-backend/metrics"
	"paggo-backend/models"

	"github.com/google/uuid"
)

// EnrichRequest identifies the stored object to extract text from
type EnrichRequest struct {
	FileID     uuid.UUID
	OwnerID    uuid.UUID
	StorageKey string
	MimeType   string
}

func enrichRequestFor(file *models.File) EnrichRequest {
	return EnrichRequest{
		FileID:     file.ID,
		OwnerID:    file.OwnerID,
		StorageKey: file.StorageKey,
		MimeType:   file.MimeType,
	}
}

func (s *FileService) scheduleEnrichment(file *models.File) error {
	req := enrichRequestFor(file)
	return s.dispatcher.Dispatch(func(ctx context.Context) {
		// Failures are logged and counted inside Enrich
		_ = s.Enrich(ctx, req)
	})
}

// Enrich fetches the stored bytes, extracts their text and saves it on the
// record. It never retries. Any failure leaves ExtractedText unchanged and is
// returned wrapped in ErrEnrichment. A record deleted in the meantime is not
// an error.
func (s *FileService) Enrich(ctx context.Context, req EnrichRequest) error {
	if err := s.checkDependencies(); err != nil {
		return err
	}

	start := time.Now()
	logger := s.logger.With("file_id", req.FileID, "storage_key", req.StorageKey)
	logger.Info("starting text extraction")

	text, outcome, err := s.extract(ctx, req)
	if err == nil {
		updated, updateErr := s.files.UpdateExtractedText(ctx, req.FileID, text)
		switch {
		case updateErr != nil:
			outcome = metrics.OutcomeStorage
			err = fmt.Errorf("failed to save extracted text: %v", updateErr)
		case !updated:
			outcome = metrics.OutcomeGone
		}
	}

	metrics.EnrichmentsTotal.WithLabelValues(outcome).Inc()
	metrics.EnrichmentDuration.Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		logger.Warn("text extraction failed", "outcome", outcome, "error", err)
		s.publish(ctx, events.EnrichmentEvent{
			FileID:  req.FileID,
			OwnerID: req.OwnerID,
			Reason:  outcome,
			At:      s.now(),
		})
		return fmt.Errorf("%w: %s: %v", ErrEnrichment, outcome, err)
	case outcome == metrics.OutcomeGone:
		logger.Info("file deleted before extracted text was saved")
		return nil
	default:
		logger.Info("extracted text saved", "length", len(text), "duration", time.Since(start))
		s.publish(ctx, events.EnrichmentEvent{
			FileID:     req.FileID,
			OwnerID:    req.OwnerID,
			Succeeded:  true,
			TextLength: len(text),
			At:         s.now(),
		})
		return nil
	}
}

// extract reads the object and calls the extractor under the extraction
// timeout. It returns the text or the metrics outcome describing the failure.
func (s *FileService) extract(ctx context.Context, req EnrichRequest) (string, string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.extractionTimeout)
	defer cancel()

	body, err := s.storage.Get(ctx, req.StorageKey)
	if err != nil {
		return "", failureOutcome(ctx, err, metrics.OutcomeFetch), fmt.Errorf("failed to fetch file: %w", err)
	}
	data, err := io.ReadAll(body)
	body.Close()
	if err != nil {
		return "", failureOutcome(ctx, err, metrics.OutcomeFetch), fmt.Errorf("failed to read file: %w", err)
	}

	text, err := s.extractor.ExtractText(ctx, data, req.MimeType)
	if err != nil {
		if errors.Is(err, extraction.ErrNoText) {
			return "", metrics.OutcomeNoText, err
		}
		return "", failureOutcome(ctx, err, metrics.OutcomeExtract), err
	}
	if strings.TrimSpace(text) == "" {
		return "", metrics.OutcomeNoText, extraction.ErrNoText
	}

	return text, metrics.OutcomeSuccess, nil
}

func failureOutcome(ctx context.Context, err error, fallback string) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return metrics.OutcomeTimeout
	}
	return fallback
}

func (s *FileService) publish(ctx context.Context, event events.EnrichmentEvent) {
	if err := s.publisher.PublishEnrichment(ctx, event); err != nil {
		s.logger.Warn("failed to publish enrichment event", "file_id", event.FileID, "error", err)
	}
}

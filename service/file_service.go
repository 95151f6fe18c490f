package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"paggo-backend/events"
	"paggo-backend/extraction"
	"paggo-backend/metrics"
	"paggo-backend/models"
	"paggo-backend/repository"
	"paggo-backend/storage"
	"paggo-backend/worker"

	"github.com/google/uuid"
)

const (
	// DefaultMaxUploadBytes is the upload ceiling when none is configured
	DefaultMaxUploadBytes int64 = 5 * 1024 * 1024
	// DefaultExtractionTimeout bounds fetching and extracting one document
	DefaultExtractionTimeout = 60 * time.Second
	// DefaultSignedURLTTL is the lifetime of URLs returned by SignFileURL
	DefaultSignedURLTTL = time.Hour

	cleanupTimeout = 30 * time.Second
)

// FileStore persists file records. Lookups that match nothing return
// repository.ErrFileNotFound.
type FileStore interface {
	Create(ctx context.Context, file *models.File) error
	GetByIDAndOwner(ctx context.Context, id, ownerID uuid.UUID) (*models.File, error)
	ListByOwnerID(ctx context.Context, ownerID uuid.UUID) ([]*models.File, error)
	UpdateExtractedText(ctx context.Context, id uuid.UUID, text string) (bool, error)
	Delete(ctx context.Context, id, ownerID uuid.UUID) (bool, error)
}

// Dispatcher runs tasks detached from the caller
type Dispatcher interface {
	Dispatch(task worker.Task) error
}

// FileService accepts uploads, stores them, and enriches them with extracted
// text in the background
type FileService struct {
	files             FileStore
	storage           storage.Storage
	extractor         extraction.Extractor
	dispatcher        Dispatcher
	publisher         events.Publisher
	logger            *slog.Logger
	maxUploadBytes    int64
	extractionTimeout time.Duration
	signedURLTTL      time.Duration
	now               func() time.Time
}

// FileServiceOption is a functional option for FileService
type FileServiceOption func(*FileService)

// FileWithRepository sets the file record store
func FileWithRepository(files FileStore) FileServiceOption {
	return func(s *FileService) {
		s.files = files
	}
}

// FileWithStorage sets the object store
func FileWithStorage(store storage.Storage) FileServiceOption {
	return func(s *FileService) {
		s.storage = store
	}
}

// FileWithExtractor sets the text extractor
func FileWithExtractor(extractor extraction.Extractor) FileServiceOption {
	return func(s *FileService) {
		s.extractor = extractor
	}
}

// FileWithDispatcher sets the background task dispatcher
func FileWithDispatcher(dispatcher Dispatcher) FileServiceOption {
	return func(s *FileService) {
		s.dispatcher = dispatcher
	}
}

// FileWithPublisher sets the enrichment event publisher
func FileWithPublisher(publisher events.Publisher) FileServiceOption {
	return func(s *FileService) {
		s.publisher = publisher
	}
}

// FileWithLogger sets the logger
func FileWithLogger(logger *slog.Logger) FileServiceOption {
	return func(s *FileService) {
		s.logger = logger
	}
}

// FileWithMaxUploadBytes sets the upload size ceiling
func FileWithMaxUploadBytes(n int64) FileServiceOption {
	return func(s *FileService) {
		s.maxUploadBytes = n
	}
}

// FileWithExtractionTimeout bounds each enrichment run
func FileWithExtractionTimeout(d time.Duration) FileServiceOption {
	return func(s *FileService) {
		s.extractionTimeout = d
	}
}

// FileWithSignedURLTTL sets the lifetime of signed URLs
func FileWithSignedURLTTL(d time.Duration) FileServiceOption {
	return func(s *FileService) {
		s.signedURLTTL = d
	}
}

// FileWithClock overrides time.Now, used when deriving storage keys
func FileWithClock(now func() time.Time) FileServiceOption {
	return func(s *FileService) {
		s.now = now
	}
}

// NewFileService creates a new file service
func NewFileService(opts ...FileServiceOption) *FileService {
	s := &FileService{
		publisher:         events.NoopPublisher{},
		maxUploadBytes:    DefaultMaxUploadBytes,
		extractionTimeout: DefaultExtractionTimeout,
		signedURLTTL:      DefaultSignedURLTTL,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// MaxUploadBytes returns the configured upload ceiling
func (s *FileService) MaxUploadBytes() int64 {
	return s.maxUploadBytes
}

func (s *FileService) checkDependencies() error {
	switch {
	case s.files == nil:
		return errors.New("file repository not set")
	case s.storage == nil:
		return errors.New("storage not set")
	case s.extractor == nil:
		return errors.New("extractor not set")
	case s.dispatcher == nil:
		return errors.New("dispatcher not set")
	}
	return nil
}

// SubmitUploadRequest represents a request to upload a file
type SubmitUploadRequest struct {
	OwnerID      uuid.UUID
	Data         io.Reader
	OriginalName string
	MimeType     string
	Size         int64 // Size declared by the client; the bytes read are authoritative
}

// SubmitUploadResult represents the result of an upload
type SubmitUploadResult struct {
	File *models.File
}

// SubmitUpload stores the file and its record, then schedules text
// extraction without waiting for it. The returned record always has
// ExtractedText == nil.
func (s *FileService) SubmitUpload(ctx context.Context, req SubmitUploadRequest) (*SubmitUploadResult, error) {
	if err := s.checkDependencies(); err != nil {
		return nil, err
	}

	payload, err := s.readUpload(req)
	if err != nil {
		metrics.UploadsTotal.WithLabelValues(metrics.OutcomeValidation).Inc()
		return nil, err
	}

	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = storage.ContentType(req.OriginalName)
	}

	fileID := uuid.New()
	storageKey := storage.GenerateKey(req.OwnerID, s.now(), req.OriginalName, fileID)
	size := int64(len(payload))

	logger := s.logger.With("file_id", fileID, "owner_id", req.OwnerID)

	// 1. Object first, so a record never points at missing bytes
	url, err := s.storage.Put(ctx, storageKey, bytes.NewReader(payload), size, mimeType)
	if err != nil {
		metrics.UploadsTotal.WithLabelValues(metrics.OutcomeStorage).Inc()
		logger.Error("failed to store object", "storage_key", storageKey, "error", err)
		return nil, fmt.Errorf("%w: failed to store file: %v", ErrStorage, err)
	}

	// 2. Record
	file := &models.File{
		ID:           fileID,
		OwnerID:      req.OwnerID,
		StorageKey:   storageKey,
		OriginalName: req.OriginalName,
		MimeType:     mimeType,
		Size:         size,
		URL:          url,
	}
	if err := s.files.Create(ctx, file); err != nil {
		metrics.UploadsTotal.WithLabelValues(metrics.OutcomeStorage).Inc()
		logger.Error("failed to save file record", "error", err)
		s.discardObject(ctx, storageKey)
		return nil, fmt.Errorf("%w: failed to save file record: %v", ErrStorage, err)
	}

	metrics.UploadsTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
	metrics.UploadBytes.Observe(float64(size))
	logger.Info("file uploaded", "storage_key", storageKey, "size", size, "mime_type", mimeType)

	// 3. Extraction is best-effort and runs after we return
	if err := s.scheduleEnrichment(file); err != nil {
		logger.Warn("text extraction not scheduled", "error", err)
	}

	return &SubmitUploadResult{File: file}, nil
}

// readUpload validates the request and reads at most maxUploadBytes+1 bytes
// so an understated Size cannot smuggle in an oversized body
func (s *FileService) readUpload(req SubmitUploadRequest) ([]byte, error) {
	if req.OwnerID == uuid.Nil {
		return nil, fmt.Errorf("%w: owner is required", ErrValidation)
	}
	if req.Data == nil {
		return nil, fmt.Errorf("%w: file is required", ErrValidation)
	}
	if strings.TrimSpace(req.OriginalName) == "" {
		return nil, fmt.Errorf("%w: file name is required", ErrValidation)
	}
	if req.Size < 0 {
		return nil, fmt.Errorf("%w: invalid file size %d", ErrValidation, req.Size)
	}
	if req.Size > s.maxUploadBytes {
		return nil, fmt.Errorf("%w: file size %d exceeds maximum of %d bytes", ErrValidation, req.Size, s.maxUploadBytes)
	}

	payload, err := io.ReadAll(io.LimitReader(req.Data, s.maxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read file: %v", ErrValidation, err)
	}
	if int64(len(payload)) > s.maxUploadBytes {
		return nil, fmt.Errorf("%w: file exceeds maximum of %d bytes", ErrValidation, s.maxUploadBytes)
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: file is empty", ErrValidation)
	}
	return payload, nil
}

// discardObject removes an object whose record could not be created. The
// request context may already be cancelled, so cleanup gets its own deadline.
func (s *FileService) discardObject(ctx context.Context, storageKey string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if err := s.storage.Delete(ctx, storageKey); err != nil {
		s.logger.Error("failed to remove orphaned object", "storage_key", storageKey, "error", err)
		return
	}
	s.logger.Info("removed orphaned object", "storage_key", storageKey)
}

// ListFilesRequest represents a request to list files
type ListFilesRequest struct {
	OwnerID uuid.UUID
}

// ListFilesResult represents the result of listing files
type ListFilesResult struct {
	Files []*models.File
}

// ListFiles lists an owner's files, newest first
func (s *FileService) ListFiles(ctx context.Context, req ListFilesRequest) (*ListFilesResult, error) {
	if s.files == nil {
		return nil, errors.New("file repository not set")
	}

	files, err := s.files.ListByOwnerID(ctx, req.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list files: %v", ErrStorage, err)
	}
	if files == nil {
		files = []*models.File{}
	}

	return &ListFilesResult{Files: files}, nil
}

// GetFileRequest represents a request for one owned file
type GetFileRequest struct {
	OwnerID uuid.UUID
	FileID  uuid.UUID
}

// GetFileResult represents the result of getting a file
type GetFileResult struct {
	File *models.File
}

// GetFile retrieves a file record owned by the caller
func (s *FileService) GetFile(ctx context.Context, req GetFileRequest) (*GetFileResult, error) {
	if s.files == nil {
		return nil, errors.New("file repository not set")
	}

	file, err := s.lookup(ctx, req.OwnerID, req.FileID)
	if err != nil {
		return nil, err
	}
	return &GetFileResult{File: file}, nil
}

// DownloadFileResult carries the record and a reader over its bytes.
// The caller must close Body.
type DownloadFileResult struct {
	File *models.File
	Body io.ReadCloser
}

// DownloadFile opens the stored bytes of an owned file
func (s *FileService) DownloadFile(ctx context.Context, req GetFileRequest) (*DownloadFileResult, error) {
	if err := s.checkDependencies(); err != nil {
		return nil, err
	}

	file, err := s.lookup(ctx, req.OwnerID, req.FileID)
	if err != nil {
		return nil, err
	}

	body, err := s.storage.Get(ctx, file.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read file: %v", ErrStorage, err)
	}

	return &DownloadFileResult{File: file, Body: body}, nil
}

// SignFileURLResult carries a time-limited URL for an owned file
type SignFileURLResult struct {
	URL       string
	ExpiresAt time.Time
}

// SignFileURL issues a signed read URL for an owned file
func (s *FileService) SignFileURL(ctx context.Context, req GetFileRequest) (*SignFileURLResult, error) {
	if err := s.checkDependencies(); err != nil {
		return nil, err
	}

	file, err := s.lookup(ctx, req.OwnerID, req.FileID)
	if err != nil {
		return nil, err
	}

	expiresAt := s.now().Add(s.signedURLTTL)
	url, err := s.storage.SignedURL(ctx, file.StorageKey, s.signedURLTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to sign URL: %v", ErrStorage, err)
	}

	return &SignFileURLResult{URL: url, ExpiresAt: expiresAt}, nil
}

// DeleteFileRequest represents a request to delete a file
type DeleteFileRequest struct {
	OwnerID uuid.UUID
	FileID  uuid.UUID
}

// DeleteFileResult represents the result of deleting a file
type DeleteFileResult struct{}

// DeleteFile removes an owned file: lookup, then object, then record. If the
// object cannot be deleted the record is left untouched.
func (s *FileService) DeleteFile(ctx context.Context, req DeleteFileRequest) (*DeleteFileResult, error) {
	if err := s.checkDependencies(); err != nil {
		return nil, err
	}

	file, err := s.lookup(ctx, req.OwnerID, req.FileID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			metrics.DeletesTotal.WithLabelValues(metrics.OutcomeNotFound).Inc()
		} else {
			metrics.DeletesTotal.WithLabelValues(metrics.OutcomeStorage).Inc()
		}
		return nil, err
	}

	logger := s.logger.With("file_id", file.ID, "owner_id", file.OwnerID)

	if err := s.storage.Delete(ctx, file.StorageKey); err != nil {
		metrics.DeletesTotal.WithLabelValues(metrics.OutcomeStorage).Inc()
		logger.Error("failed to delete object", "storage_key", file.StorageKey, "error", err)
		return nil, fmt.Errorf("%w: failed to delete file: %v", ErrStorage, err)
	}

	deleted, err := s.files.Delete(ctx, file.ID, file.OwnerID)
	if err != nil {
		metrics.DeletesTotal.WithLabelValues(metrics.OutcomeStorage).Inc()
		logger.Error("failed to delete file record", "error", err)
		return nil, fmt.Errorf("%w: failed to delete file record: %v", ErrStorage, err)
	}
	if !deleted {
		// A concurrent delete got there first; the outcome is the same
		logger.Debug("file record already gone")
	}

	metrics.DeletesTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
	logger.Info("file deleted", "storage_key", file.StorageKey)

	return &DeleteFileResult{}, nil
}

// ReprocessFile schedules another extraction run for an owned file. The
// previous text, if any, stays until the new run succeeds.
func (s *FileService) ReprocessFile(ctx context.Context, req GetFileRequest) error {
	if err := s.checkDependencies(); err != nil {
		return err
	}

	file, err := s.lookup(ctx, req.OwnerID, req.FileID)
	if err != nil {
		return err
	}

	if err := s.scheduleEnrichment(file); err != nil {
		return fmt.Errorf("failed to schedule text extraction: %w", err)
	}
	return nil
}

func (s *FileService) lookup(ctx context.Context, ownerID, fileID uuid.UUID) (*models.File, error) {
	file, err := s.files.GetByIDAndOwner(ctx, fileID, ownerID)
	if errors.Is(err, repository.ErrFileNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load file: %v", ErrStorage, err)
	}
	return file, nil
}

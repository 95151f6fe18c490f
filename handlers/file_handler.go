package handlers

import (
	"context"
	"errors"
	"log/slog"
	"mime"
	"net/http"

	"paggo-backend/middleware"
	"paggo-backend/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// multipartOverhead is allowed on top of the file limit for form boundaries
// and part headers
const multipartOverhead = 1 << 20

// FileService is the part of service.FileService used by the handler
type FileService interface {
	MaxUploadBytes() int64
	SubmitUpload(ctx context.Context, req service.SubmitUploadRequest) (*service.SubmitUploadResult, error)
	ListFiles(ctx context.Context, req service.ListFilesRequest) (*service.ListFilesResult, error)
	GetFile(ctx context.Context, req service.GetFileRequest) (*service.GetFileResult, error)
	DownloadFile(ctx context.Context, req service.GetFileRequest) (*service.DownloadFileResult, error)
	SignFileURL(ctx context.Context, req service.GetFileRequest) (*service.SignFileURLResult, error)
	ReprocessFile(ctx context.Context, req service.GetFileRequest) error
	DeleteFile(ctx context.Context, req service.DeleteFileRequest) (*service.DeleteFileResult, error)
}

// FileHandler handles HTTP requests for file operations
type FileHandler struct {
	files  FileService
	logger *slog.Logger
}

// NewFileHandler creates a new file handler
func NewFileHandler(files FileService, logger *slog.Logger) *FileHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileHandler{files: files, logger: logger}
}

// RegisterRoutes mounts the file endpoints on an authenticated group
func (h *FileHandler) RegisterRoutes(r gin.IRouter) {
	r.POST("/files", h.UploadFile)
	r.GET("/files", h.ListFiles)
	r.GET("/files/:id", h.GetFile)
	r.GET("/files/:id/download", h.DownloadFile)
	r.GET("/files/:id/url", h.GetFileURL)
	r.POST("/files/:id/extract", h.ReprocessFile)
	r.DELETE("/files/:id", h.DeleteFile)
}

// UploadFile handles POST /api/files
func (h *FileHandler) UploadFile(c *gin.Context) {
	ownerID, ok := h.requireOwner(c)
	if !ok {
		return
	}

	limit := h.files.MaxUploadBytes() + multipartOverhead
	if c.Request.ContentLength > limit {
		writeError(c, http.StatusBadRequest, "FILE_TOO_LARGE", "File exceeds the maximum upload size")
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(c, http.StatusBadRequest, "FILE_TOO_LARGE", "File exceeds the maximum upload size")
			return
		}
		writeError(c, http.StatusBadRequest, "MISSING_FILE", "File is required")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		writeError(c, http.StatusBadRequest, "FILE_OPEN_ERROR", err.Error())
		return
	}
	defer file.Close()

	// Browsers send octet-stream for unknown types; let the name decide
	mimeType := fileHeader.Header.Get("Content-Type")
	if mimeType == "application/octet-stream" {
		mimeType = ""
	}

	result, err := h.files.SubmitUpload(c.Request.Context(), service.SubmitUploadRequest{
		OwnerID:      ownerID,
		Data:         file,
		OriginalName: fileHeader.Filename,
		MimeType:     mimeType,
		Size:         fileHeader.Size,
	})
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    result.File,
	})
}

// ListFiles handles GET /api/files
func (h *FileHandler) ListFiles(c *gin.Context) {
	ownerID, ok := h.requireOwner(c)
	if !ok {
		return
	}

	result, err := h.files.ListFiles(c.Request.Context(), service.ListFilesRequest{OwnerID: ownerID})
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    result.Files,
	})
}

// GetFile handles GET /api/files/:id
func (h *FileHandler) GetFile(c *gin.Context) {
	req, ok := h.fileRequest(c)
	if !ok {
		return
	}

	result, err := h.files.GetFile(c.Request.Context(), req)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    result.File,
	})
}

// DownloadFile handles GET /api/files/:id/download
func (h *FileHandler) DownloadFile(c *gin.Context) {
	req, ok := h.fileRequest(c)
	if !ok {
		return
	}

	result, err := h.files.DownloadFile(c.Request.Context(), req)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	defer result.Body.Close()

	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": result.File.OriginalName})
	c.DataFromReader(http.StatusOK, result.File.Size, result.File.MimeType, result.Body, map[string]string{
		"Content-Disposition": disposition,
	})
}

// GetFileURL handles GET /api/files/:id/url
func (h *FileHandler) GetFileURL(c *gin.Context) {
	req, ok := h.fileRequest(c)
	if !ok {
		return
	}

	result, err := h.files.SignFileURL(c.Request.Context(), req)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"url":        result.URL,
			"expires_at": result.ExpiresAt,
		},
	})
}

// ReprocessFile handles POST /api/files/:id/extract
func (h *FileHandler) ReprocessFile(c *gin.Context) {
	req, ok := h.fileRequest(c)
	if !ok {
		return
	}

	if err := h.files.ReprocessFile(c.Request.Context(), req); err != nil {
		h.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"data": gin.H{
			"id":     req.FileID,
			"status": "scheduled",
		},
	})
}

// DeleteFile handles DELETE /api/files/:id
func (h *FileHandler) DeleteFile(c *gin.Context) {
	req, ok := h.fileRequest(c)
	if !ok {
		return
	}

	_, err := h.files.DeleteFile(c.Request.Context(), service.DeleteFileRequest{
		OwnerID: req.OwnerID,
		FileID:  req.FileID,
	})
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"id": req.FileID,
		},
	})
}

func (h *FileHandler) requireOwner(c *gin.Context) (uuid.UUID, bool) {
	ownerID, ok := middleware.OwnerIDFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return uuid.Nil, false
	}
	return ownerID, true
}

func (h *FileHandler) fileRequest(c *gin.Context) (service.GetFileRequest, bool) {
	ownerID, ok := h.requireOwner(c)
	if !ok {
		return service.GetFileRequest{}, false
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_ID", "Invalid file ID format")
		return service.GetFileRequest{}, false
	}

	return service.GetFileRequest{OwnerID: ownerID, FileID: id}, true
}

func (h *FileHandler) writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		writeError(c, http.StatusBadRequest, "INVALID_UPLOAD", err.Error())
	case errors.Is(err, service.ErrNotFound):
		writeError(c, http.StatusNotFound, "NOT_FOUND", "File not found")
	case errors.Is(err, service.ErrStorage):
		h.logger.Error("storage failure", "path", c.FullPath(), "error", err)
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "STORAGE_ERROR", "Storage operation failed")
	default:
		h.logger.Error("request failed", "path", c.FullPath(), "error", err)
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}

func writeError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

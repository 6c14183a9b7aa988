package handlers

import (
	"errors"
	"mime"
	"net/http"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/grahamatarrowmedia/ai-doc-phone--app/internal/blob"
	"github.com/grahamatarrowmedia/ai-doc-phone--app/internal/metrics"
)

// UploadHandler accepts research material and stores it in the blob store
type UploadHandler struct {
	store    blob.Store
	maxBytes int64
	logger   *zap.Logger
}

// NewUploadHandler creates a new upload handler. maxBytes caps the request body.
func NewUploadHandler(store blob.Store, maxBytes int64, logger *zap.Logger) *UploadHandler {
	return &UploadHandler{store: store, maxBytes: maxBytes, logger: logger}
}

// UploadedFile is the file section of an upload response
type UploadedFile struct {
	Name string `json:"name"`
	*blob.Object
}

func allowedList() string {
	exts := make([]string, 0, len(blob.AllowedExtensions))
	for ext := range blob.AllowedExtensions {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return strings.Join(exts, ", ")
}

// Upload handles POST /api/upload
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		sendError(w, "File storage is not configured", http.StatusServiceUnavailable)
		return
	}
	if h.maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			metrics.RecordUpload("too_large", 0)
			sendError(w, "File too large", http.StatusRequestEntityTooLarge)
		case errors.Is(err, http.ErrMissingFile):
			sendError(w, "No file provided", http.StatusBadRequest)
		default:
			sendError(w, "Invalid multipart form", http.StatusBadRequest)
		}
		return
	}
	defer file.Close()

	if header.Filename == "" {
		sendError(w, "No file selected", http.StatusBadRequest)
		return
	}
	if !blob.AllowedFile(header.Filename) {
		metrics.RecordUpload("rejected", 0)
		sendError(w, "File type not allowed. Allowed: "+allowedList(), http.StatusBadRequest)
		return
	}
	name := blob.SanitizeFilename(header.Filename)
	if !blob.AllowedFile(name) {
		metrics.RecordUpload("rejected", 0)
		sendError(w, "Invalid file name", http.StatusBadRequest)
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); byExt != "" {
			contentType = byExt
		}
	}

	dest := blob.DestinationPath(r.FormValue("project_id"), r.FormValue("series_id"), r.FormValue("episode_id"), name)
	obj, err := h.store.Upload(r.Context(), dest, file, contentType)
	if err != nil {
		metrics.RecordUpload("error", 0)
		h.logger.Error("Upload failed", zap.String("path", dest), zap.Error(err))
		sendError(w, "Upload failed", http.StatusInternalServerError)
		return
	}

	metrics.RecordUpload("ok", obj.Size)
	h.logger.Info("File uploaded",
		zap.String("path", obj.Path),
		zap.Int64("size", obj.Size),
		zap.String("content_type", obj.ContentType),
	)
	sendJSON(w, map[string]interface{}{
		"message": "File uploaded successfully",
		"file":    UploadedFile{Name: name, Object: obj},
	}, http.StatusCreated)
}

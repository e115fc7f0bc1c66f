package document

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"docquery/internal/extract"
	"docquery/internal/middleware"
	"docquery/internal/vector"
)

type Handler struct {
	service        *Service
	uploadDir      string
	maxUploadBytes int64
}

func NewHandler(service *Service, uploadDir string, maxUploadMB int) *Handler {
	if maxUploadMB <= 0 {
		maxUploadMB = 50
	}
	return &Handler{
		service:        service,
		uploadDir:      uploadDir,
		maxUploadBytes: int64(maxUploadMB) << 20,
	}
}

// Upload accepts one multipart file. With ?sync=1 ingestion runs inline and
// the response carries the terminal status; otherwise the document is queued
// and returned as pending with 202.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		h.writeError(r.Context(), w, "BAD_REQUEST", "File too large", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(r.Context(), w, "BAD_REQUEST", "Unable to retrieve file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	path, err := h.saveUpload(file, header.Filename)
	if err != nil {
		slog.Error("failed to save uploaded file", "error", err)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Failed to save file", http.StatusInternalServerError)
		return
	}

	sync := r.URL.Query().Get("sync") == "1" || r.URL.Query().Get("sync") == "true"
	doc, err := h.service.Upload(r.Context(), filepath.Base(header.Filename), header.Header.Get("Content-Type"), path, sync)
	if err != nil {
		if errors.Is(err, extract.ErrUnsupportedFormat) {
			h.writeError(r.Context(), w, "UNSUPPORTED_FORMAT", err.Error(), http.StatusBadRequest)
			return
		}
		if errors.Is(err, vector.ErrUnavailable) {
			h.writeError(r.Context(), w, "STORE_UNAVAILABLE", "Vector store unavailable", http.StatusServiceUnavailable)
			return
		}
		slog.Error("upload failed", "error", err, "filename", header.Filename)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if sync && doc.Status == StatusEmpty {
		h.writeError(r.Context(), w, "EMPTY_DOCUMENT", "No text content could be extracted", http.StatusBadRequest)
		return
	}

	status := http.StatusAccepted
	if sync {
		status = http.StatusCreated
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": doc}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// UploadBatch accepts multiple files under the "files" field and queues each
// independently. One bad file does not fail the batch.
func (h *Handler) UploadBatch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		h.writeError(r.Context(), w, "BAD_REQUEST", "Request too large", http.StatusBadRequest)
		return
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		h.writeError(r.Context(), w, "BAD_REQUEST", "No files provided", http.StatusBadRequest)
		return
	}

	type item struct {
		Filename string    `json:"filename"`
		Document *Document `json:"document,omitempty"`
		Error    string    `json:"error,omitempty"`
	}
	items := make([]item, 0, len(headers))
	for _, header := range headers {
		it := item{Filename: filepath.Base(header.Filename)}
		file, err := header.Open()
		if err != nil {
			it.Error = "unable to read file"
			items = append(items, it)
			continue
		}
		path, err := h.saveUpload(file, header.Filename)
		file.Close()
		if err != nil {
			slog.Error("failed to save uploaded file", "error", err)
			it.Error = "failed to save file"
			items = append(items, it)
			continue
		}
		doc, err := h.service.Upload(r.Context(), it.Filename, header.Header.Get("Content-Type"), path, false)
		if err != nil {
			it.Error = err.Error()
			items = append(items, it)
			continue
		}
		it.Document = doc
		items = append(items, it)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"data": items,
		"meta": map[string]int{"count": len(items)},
	}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	docs, err := h.service.List(r.Context())
	if err != nil {
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	if docs == nil {
		docs = []Document{}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"data": docs,
		"meta": map[string]int{"count": len(docs)},
	}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	doc, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.writeError(r.Context(), w, "NOT_FOUND", "Document not found", http.StatusNotFound)
			return
		}
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": doc}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) saveUpload(file multipart.File, originalName string) (string, error) {
	if err := os.MkdirAll(h.uploadDir, 0o750); err != nil {
		return "", err
	}
	filename := fmt.Sprintf("%s_%s", uuid.New().String(), filepath.Base(originalName))
	path := filepath.Clean(filepath.Join(h.uploadDir, filename))

	dst, err := os.Create(path) // #nosec G304 -- path is constructed from UUID + sanitized basename, not user-controlled
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		return "", err
	}
	return path, nil
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

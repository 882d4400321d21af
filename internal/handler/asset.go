package handler

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sakif/blockhub/internal/apperror"
	"github.com/sakif/blockhub/internal/auth"
	"github.com/sakif/blockhub/internal/service"
	"github.com/sakif/blockhub/internal/storage"
)

// AssetHandler serves standalone file uploads and downloads.
type AssetHandler struct {
	content   *service.ContentService
	maxUpload int64
	logger    *slog.Logger
}

func NewAssetHandler(content *service.ContentService, maxUpload int64, logger *slog.Logger) *AssetHandler {
	return &AssetHandler{content: content, maxUpload: maxUpload, logger: logger}
}

// HandleUpload stores the multipart "file" part.
//
// HTTP: POST /blocks/upload
// Auth: Required
// RESPONSE: 201 {"fileName": "...", "url": "..."}
func (h *AssetHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.IdentityFromContext(r.Context()); !ok {
		writeError(w, apperror.Unauthorized("Not authenticated"))
		return
	}

	if !isMultipart(r) {
		writeError(w, apperror.ValidationFailed("file", "file is required"))
		return
	}
	if err := parseMultipart(w, r, h.maxUpload); err != nil {
		writeError(w, err)
		return
	}
	file, err := formFile(r, "file")
	if err != nil {
		writeError(w, err)
		return
	}
	if file == nil {
		writeError(w, apperror.ValidationFailed("file", "file is required"))
		return
	}

	obj, err := h.content.Upload(r.Context(), *file)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, obj)
}

// HandleDownload streams a stored file.
//
// HTTP: GET /blocks/download/{fileName}
func (h *AssetHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	obj, err := h.content.Download(r.Context(), chi.URLParam(r, "fileName"))
	if err != nil {
		writeError(w, err)
		return
	}
	defer obj.Close()

	contentType := obj.ContentType
	if contentType == "" {
		contentType = storage.DefaultContentType
	}
	w.Header().Set("Content-Type", contentType)
	if obj.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, obj); err != nil {
		// Headers are already sent; all we can do is log.
		h.logger.Error("download interrupted", slog.String("error", err.Error()))
	}
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

// parseMultipart reads a multipart body no larger than limit. Parts beyond
// the in-memory threshold spill to temp files, which the server removes
// when the request ends.
func parseMultipart(w http.ResponseWriter, r *http.Request, limit int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperror.ValidationFailed("file", "file is too large")
		}
		return apperror.ValidationFailed("body", "Invalid multipart body")
	}
	return nil
}

// formFile reads the named file part into memory. A missing part is not an
// error; it returns nil.
func formFile(r *http.Request, field string) (*service.Upload, error) {
	f, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, apperror.ValidationFailed(field, "Invalid file upload")
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, apperror.ValidationFailed(field, "Invalid file upload")
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = storage.DefaultContentType
	}
	return &service.Upload{
		Name:        header.Filename,
		ContentType: contentType,
		Data:        data,
	}, nil
}

// formTags collects tags from a multipart form. Both repeated "tags" fields
// and a single comma separated value are accepted.
func formTags(r *http.Request) []string {
	var tags []string
	for _, v := range r.MultipartForm.Value["tags"] {
		tags = append(tags, service.ParseTags(v)...)
	}
	return tags
}

package handler

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/openshelf/shop-api/internal/objectstore"
)

// uploadFolder is the key prefix for product images.
const uploadFolder = "products"

// defaultPresignTTL matches the common one-hour presigned URL lifetime.
const defaultPresignTTL = 3600

type uploadResponse struct {
	ImageURL string `json:"imageUrl,omitempty"`
	Message  string `json:"message"`
	Filename string `json:"filename,omitempty"`
}

func (h *Handler) uploadImage(w http.ResponseWriter, r *http.Request) {
	if !h.store.Enabled() {
		h.writeError(w, http.StatusServiceUnavailable,
			"object storage is not enabled or configured")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	if header.Size > objectstore.MaxUploadSize {
		h.writeError(w, http.StatusBadRequest, "file size exceeds 5MB limit")
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, objectstore.MaxUploadSize+1))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if len(data) > objectstore.MaxUploadSize {
		h.writeError(w, http.StatusBadRequest, "file size exceeds 5MB limit")
		return
	}

	url, err := h.store.Put(r.Context(), objectstore.Upload{
		Data:        data,
		ContentType: header.Header.Get("Content-Type"),
		Filename:    header.Filename,
		Folder:      uploadFolder,
	})
	if err != nil {
		switch err {
		case objectstore.ErrEmptyFile, objectstore.ErrNotImage:
			h.writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.respondError(w, r, err)
		}
		return
	}

	h.writeJSON(w, http.StatusOK, uploadResponse{
		ImageURL: url,
		Message:  "image uploaded successfully",
		Filename: header.Filename,
	})
}

func (h *Handler) deleteImage(w http.ResponseWriter, r *http.Request) {
	if !h.store.Enabled() {
		h.writeError(w, http.StatusServiceUnavailable,
			"object storage is not enabled or configured")
		return
	}

	url := r.URL.Query().Get("url")
	if url == "" {
		h.writeError(w, http.StatusBadRequest, "url parameter is required")
		return
	}

	if err := h.store.Delete(r.Context(), url); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, uploadResponse{Message: "image deleted successfully"})
}

type storageStatusResponse struct {
	S3Enabled bool   `json:"s3Enabled"`
	Message   string `json:"message"`
}

func (h *Handler) storageStatus(w http.ResponseWriter, r *http.Request) {
	enabled := h.store.Enabled()
	message := "object storage is enabled and ready"
	if !enabled {
		message = "object storage is not enabled or not configured properly"
	}
	h.writeJSON(w, http.StatusOK, storageStatusResponse{
		S3Enabled: enabled,
		Message:   message,
	})
}

func (h *Handler) serveImage(w http.ResponseWriter, r *http.Request) {
	if !h.store.Enabled() {
		h.writeError(w, http.StatusServiceUnavailable,
			"object storage is not enabled or configured")
		return
	}

	folder := chi.URLParam(r, "folder")
	filename := chi.URLParam(r, "filename")

	data, err := h.store.Get(r.Context(), folder+"/"+filename)
	if err != nil {
		h.writeError(w, http.StatusNotFound, "image not found")
		return
	}

	w.Header().Set("Content-Type", contentTypeByExt(filename))
	w.Header().Set("Content-Disposition", `inline; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data) //nolint:errcheck // client gone, nothing to do
}

type presignResponse struct {
	URL       string `json:"url"`
	ExpiresIn int    `json:"expiresIn"`
	Message   string `json:"message"`
}

func (h *Handler) presignedURL(w http.ResponseWriter, r *http.Request) {
	if !h.store.Enabled() {
		h.writeError(w, http.StatusServiceUnavailable,
			"object storage is not enabled or configured")
		return
	}

	key := r.URL.Query().Get("key")
	if key == "" {
		h.writeError(w, http.StatusBadRequest, "key parameter is required")
		return
	}

	expiry := defaultPresignTTL
	if raw := r.URL.Query().Get("expirationSeconds"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			h.writeError(w, http.StatusBadRequest, "expirationSeconds must be a positive integer")
			return
		}
		expiry = v
	}

	url, err := h.store.Presign(r.Context(), key, time.Duration(expiry)*time.Second)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, presignResponse{
		URL:       url,
		ExpiresIn: expiry,
		Message:   "presigned URL generated successfully",
	})
}

func contentTypeByExt(filename string) string {
	ext := strings.ToLower(filename)
	if i := strings.LastIndexByte(ext, '.'); i >= 0 {
		ext = ext[i+1:]
	}
	switch ext {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

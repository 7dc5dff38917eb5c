package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/leca/imagehost/internal/api"
	"github.com/leca/imagehost/internal/images"
	"github.com/leca/imagehost/internal/model"
)

// multipartOverhead leaves room for form fields and boundaries on top of
// the file size limit.
const multipartOverhead = 1 << 20

// baseURL returns the configured public base URL, or one derived from the
// request when none is configured.
func (h *Handler) baseURL(r *http.Request) string {
	if h.Config.BaseURL != "" {
		return h.Config.BaseURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p == "http" || p == "https" {
		scheme = p
	}
	return scheme + "://" + r.Host
}

// withURL returns a copy of img carrying its resolvable URL.
func (h *Handler) withURL(r *http.Request, img *model.Image) *model.Image {
	out := *img
	out.URL = h.baseURL(r) + "/" + img.Path
	return &out
}

// writeError maps a service error onto a response. Not-found is uniform
// whether the image is missing or owned by someone else.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, images.ErrNotFound):
		api.NotFound(w, "Image not found")
	case errors.Is(err, images.ErrInvalidUpload):
		api.BadRequest(w, err.Error())
	case errors.Is(err, images.ErrUnsupportedFormat):
		api.UnsupportedMediaType(w, "file is not a supported image")
	case errors.Is(err, images.ErrStorageWrite):
		slog.Error("storage failure", "method", r.Method, "path", r.URL.Path, "error", err)
		api.InternalError(w, "failed to store image")
	case errors.Is(err, images.ErrMetadataWrite):
		slog.Error("metadata failure", "method", r.Method, "path", r.URL.Path, "error", err)
		api.InternalError(w, "failed to save image record")
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		api.InternalError(w, "internal server error")
	}
}

// UploadImage handles POST / -- multipart upload with file field "image"
// (or "file") and optional "title" and "description".
func (h *Handler) UploadImage(w http.ResponseWriter, r *http.Request) {
	owner := api.GetOwner(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, int64(h.Config.MaxUploadBytes)+multipartOverhead)
	if err := r.ParseMultipartForm(int64(h.Config.MaxUploadBytes)); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.TooLarge(w, "file exceeds the upload size limit")
			return
		}
		api.BadRequest(w, "invalid multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := formFile(r, "image", "file")
	if err != nil {
		api.BadRequest(w, "No image file provided")
		return
	}
	defer file.Close()

	if header.Size > int64(h.Config.MaxUploadBytes) {
		api.TooLarge(w, "file exceeds the upload size limit")
		return
	}

	img, err := h.Images.Upload(r.Context(), images.UploadInput{
		Owner:       owner,
		Data:        file,
		ContentType: header.Header.Get("Content-Type"),
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	api.WriteJSON(w, http.StatusCreated, api.SuccessResponse(h.withURL(r, img)))
}

// formFile returns the first present file among the given field names.
func formFile(r *http.Request, fields ...string) (multipart.File, *multipart.FileHeader, error) {
	var lastErr error
	for _, f := range fields {
		file, header, err := r.FormFile(f)
		if err == nil {
			return file, header, nil
		}
		lastErr = err
	}
	return nil, nil, lastErr
}

// ListImages handles GET / -- the owner's images, newest first.
func (h *Handler) ListImages(w http.ResponseWriter, r *http.Request) {
	owner := api.GetOwner(r.Context())

	list, err := h.Images.List(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]*model.Image, 0, len(list))
	for _, img := range list {
		out = append(out, h.withURL(r, img))
	}
	api.WriteJSON(w, http.StatusOK, api.SuccessResponse(out))
}

// GetImage handles GET /{image_id}.
func (h *Handler) GetImage(w http.ResponseWriter, r *http.Request) {
	owner := api.GetOwner(r.Context())
	imageID := chi.URLParam(r, "image_id")

	img, err := h.Images.Get(r.Context(), owner, imageID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, api.SuccessResponse(h.withURL(r, img)))
}

// UpdateImage handles PUT and PATCH /{image_id}. Only title and description
// can change; absent fields are left as they are.
func (h *Handler) UpdateImage(w http.ResponseWriter, r *http.Request) {
	owner := api.GetOwner(r.Context())
	imageID := chi.URLParam(r, "image_id")

	var patch model.Patch
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	if err := dec.Decode(&patch); err != nil {
		api.BadRequest(w, "invalid JSON body: "+err.Error())
		return
	}

	var img *model.Image
	var err error
	if patch.Empty() {
		img, err = h.Images.Get(r.Context(), owner, imageID)
	} else {
		img, err = h.Images.Update(r.Context(), owner, imageID, patch)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, api.SuccessResponse(h.withURL(r, img)))
}

// DeleteImage handles DELETE /{image_id}.
func (h *Handler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	owner := api.GetOwner(r.Context())
	imageID := chi.URLParam(r, "image_id")

	if err := h.Images.Delete(r.Context(), owner, imageID); err != nil {
		writeError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, api.MessageResponse(http.StatusOK, "Image deleted successfully"))
}

// GetStats handles GET /stats.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	owner := api.GetOwner(r.Context())

	count, err := h.Images.Count(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, api.SuccessResponse(map[string]int{"count": count}))
}

// trimmedParam is chi.URLParam without surrounding whitespace.
func trimmedParam(r *http.Request, key string) string {
	return strings.TrimSpace(chi.URLParam(r, key))
}

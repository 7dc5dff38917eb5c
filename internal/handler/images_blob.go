package handler

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/leca/imagehost/internal/imageproc"
)

// ServeUpload handles GET /uploads/{filename} -- streams a normalized image.
// Filenames are unguessable uuids; the metadata stays owner-scoped.
func (h *Handler) ServeUpload(w http.ResponseWriter, r *http.Request) {
	filename := trimmedParam(r, "filename")

	rc, err := h.Images.Open(r.Context(), filename)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", imageproc.OutputContentType)
	w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(365*24*3600)+", immutable")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, rc); err != nil {
		slog.Warn("failed to stream image", "filename", filename, "error", err)
	}
}


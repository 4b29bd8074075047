package api

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tendant/simple-listing/pkg/simplelisting"
)

// FilesHandler streams uploaded media back to clients
type FilesHandler struct {
	media  *simplelisting.MediaResolver
	logger *slog.Logger
}

func NewFilesHandler(media *simplelisting.MediaResolver, logger *slog.Logger) *FilesHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &FilesHandler{media: media, logger: logger}
}

// Register adds the static media routes to r
func (h *FilesHandler) Register(r chi.Router) {
	r.Get("/uploads/{kind}/{filename}", h.Serve)
	r.Get("/download/{kind}/{filename}", h.Download)
}

// Serve streams a file inline
func (h *FilesHandler) Serve(w http.ResponseWriter, r *http.Request) {
	h.stream(w, r, false)
}

// Download streams a file as an attachment
func (h *FilesHandler) Download(w http.ResponseWriter, r *http.Request) {
	h.stream(w, r, true)
}

func (h *FilesHandler) stream(w http.ResponseWriter, r *http.Request, attachment bool) {
	notFound := &simplelisting.ResourceError{Kind: simplelisting.KindMedia, Op: "open", Message: "file not found", Err: simplelisting.ErrNotFound}

	mediaType, ok := simplelisting.ParseMediaType(chi.URLParam(r, "kind"))
	if !ok {
		writeError(w, r, h.logger, notFound)
		return
	}
	name, err := url.PathUnescape(chi.URLParam(r, "filename"))
	if err != nil {
		writeError(w, r, h.logger, notFound)
		return
	}

	rc, meta, err := h.media.Open(r.Context(), mediaType, name)
	if err != nil {
		if errors.Is(err, simplelisting.ErrBlobNotFound) {
			writeError(w, r, h.logger, notFound)
			return
		}
		writeError(w, r, h.logger, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", mediaType.ContentType())
	if meta != nil && meta.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
	}
	if attachment {
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.WarnContext(r.Context(), "media stream interrupted", "kind", mediaType, "file", name, "err", err)
	}
}

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.uber.org/multierr"

	"github.com/tendant/simple-listing/pkg/simplelisting"
)

// FileFieldParam names the multipart part carrying the upload.
const (
	FileFieldParam   = "fileFieldName"
	DefaultFileField = "file"
)

const maxMemoryMultipart = 32 << 20

// ResourceHandler serves the CRUD routes of one resource kind.
type ResourceHandler struct {
	service simplelisting.Service
	logger  *slog.Logger
}

// NewResourceHandler creates a handler for service.
func NewResourceHandler(service simplelisting.Service, logger *slog.Logger) *ResourceHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResourceHandler{service: service, logger: logger}
}

// Routes returns the routes for the kind
func (h *ResourceHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Create)
	r.Post("/many", h.CreateMany)
	r.Get("/", h.List)
	r.Get("/slug/{slug}", h.GetBySlug)
	r.Get("/{id}", h.Get)

	r.Put("/many", h.UpdateMany)
	r.Put("/{id}", h.Update)
	r.Patch("/{id}", h.Update)

	r.Delete("/many", h.DeleteMany)
	r.Delete("/{id}", h.Delete)

	return r
}

func (h *ResourceHandler) kind() string {
	return h.service.Kind().Name
}

// Create creates one resource from a JSON or multipart body
func (h *ResourceHandler) Create(w http.ResponseWriter, r *http.Request) {
	payload, upload, cleanup, err := h.decodeBody(r, "create")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	defer cleanup()

	doc, err := h.service.Create(r.Context(), PrincipalFrom(r.Context()), simplelisting.CreateRequest{
		Payload: payload,
		Upload:  upload,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, doc)
}

// CreateMany creates every object of a JSON array body
func (h *ResourceHandler) CreateMany(w http.ResponseWriter, r *http.Request) {
	var items []map[string]any
	if err := render.DecodeJSON(r.Body, &items); err != nil {
		writeError(w, r, h.logger, badRequest(h.kind(), "createMany", "request body must be a JSON array of objects"))
		return
	}
	reqs := make([]simplelisting.CreateRequest, len(items))
	for i, item := range items {
		reqs[i] = simplelisting.CreateRequest{Payload: item}
	}

	result, err := h.service.CreateMany(r.Context(), PrincipalFrom(r.Context()), reqs)
	h.writeBatch(w, r, http.StatusCreated, result, err)
}

// List returns one page of resources matching the query parameters
func (h *ResourceHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filters := make(map[string]string, len(query))
	for key, values := range query {
		filters[key] = strings.Join(values, ",")
	}
	page, _ := strconv.Atoi(query.Get(simplelisting.ParamPage))
	limit, _ := strconv.Atoi(query.Get(simplelisting.ParamLimit))

	result, err := h.service.List(r.Context(), simplelisting.ListRequest{Filters: filters, Page: page, Limit: limit})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, result)
}

func (h *ResourceHandler) Get(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, doc)
}

func (h *ResourceHandler) GetBySlug(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, doc)
}

// Update applies a partial update. PUT and PATCH behave the same.
func (h *ResourceHandler) Update(w http.ResponseWriter, r *http.Request) {
	payload, upload, cleanup, err := h.decodeBody(r, "update")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	defer cleanup()

	doc, err := h.service.Update(r.Context(), PrincipalFrom(r.Context()), simplelisting.UpdateRequest{
		ID:      chi.URLParam(r, "id"),
		Payload: payload,
		Upload:  upload,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, doc)
}

// UpdateMany applies a JSON array of partial updates, each carrying its id
func (h *ResourceHandler) UpdateMany(w http.ResponseWriter, r *http.Request) {
	var items []map[string]any
	if err := render.DecodeJSON(r.Body, &items); err != nil {
		writeError(w, r, h.logger, badRequest(h.kind(), "updateMany", "request body must be a JSON array of objects"))
		return
	}
	reqs := make([]simplelisting.UpdateRequest, len(items))
	for i, item := range items {
		id, _ := item[simplelisting.FieldID].(string)
		if id == "" {
			id, _ = item["_id"].(string)
		}
		reqs[i] = simplelisting.UpdateRequest{ID: id, Payload: item}
	}

	result, err := h.service.UpdateMany(r.Context(), PrincipalFrom(r.Context()), reqs)
	h.writeBatch(w, r, http.StatusOK, result, err)
}

// DeleteResponse is the body of a successful delete
type DeleteResponse struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

func (h *ResourceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.Delete(r.Context(), PrincipalFrom(r.Context()), id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, DeleteResponse{ID: id, Deleted: true})
}

// DeleteManyRequest is the body of a batch delete
type DeleteManyRequest struct {
	IDs []string `json:"ids"`
}

func (h *ResourceHandler) DeleteMany(w http.ResponseWriter, r *http.Request) {
	var req DeleteManyRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, h.logger, badRequest(h.kind(), "deleteMany", `request body must be {"ids": [...]}`))
		return
	}
	result, err := h.service.DeleteMany(r.Context(), PrincipalFrom(r.Context()), req.IDs)
	h.writeBatch(w, r, http.StatusOK, result, err)
}

// BatchResponse reports a batch outcome, with the first failure as error.
type BatchResponse struct {
	*simplelisting.BatchResult
	Error *ErrorBody `json:"error,omitempty"`
}

func (h *ResourceHandler) writeBatch(w http.ResponseWriter, r *http.Request, okStatus int, result *simplelisting.BatchResult, err error) {
	if result == nil {
		if err == nil {
			err = fmt.Errorf("%s batch returned no result", h.kind())
		}
		writeError(w, r, h.logger, err)
		return
	}
	if err == nil {
		render.Status(r, okStatus)
		render.JSON(w, r, BatchResponse{BatchResult: result})
		return
	}

	errs := multierr.Errors(err)
	status, body := errorBody(r, errs[0])
	h.logger.InfoContext(r.Context(), "batch partially failed", "kind", h.kind(), "failed", len(errs), "status", status)
	render.Status(r, status)
	render.JSON(w, r, BatchResponse{BatchResult: result, Error: &body})
}

// decodeBody reads a JSON object or a multipart form. The returned cleanup
// releases the uploaded file and must be called once the request is handled.
func (h *ResourceHandler) decodeBody(r *http.Request, op string) (map[string]any, *simplelisting.Upload, func(), error) {
	noop := func() {}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		return h.decodeMultipart(r, op)
	}

	payload := map[string]any{}
	if r.Body == nil {
		return payload, nil, noop, nil
	}
	if err := render.DecodeJSON(r.Body, &payload); err != nil {
		if errors.Is(err, io.EOF) {
			return map[string]any{}, nil, noop, nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, nil, noop, badRequest(h.kind(), op, "request body too large")
		}
		return nil, nil, noop, badRequest(h.kind(), op, "request body must be a JSON object")
	}
	return payload, nil, noop, nil
}

func (h *ResourceHandler) decodeMultipart(r *http.Request, op string) (map[string]any, *simplelisting.Upload, func(), error) {
	noop := func() {}
	if err := r.ParseMultipartForm(maxMemoryMultipart); err != nil {
		return nil, nil, noop, badRequest(h.kind(), op, "invalid multipart body")
	}
	form := r.MultipartForm

	payload := make(map[string]any, len(form.Value))
	for key, values := range form.Value {
		if key == FileFieldParam || len(values) == 0 {
			continue
		}
		if len(values) == 1 {
			payload[key] = formValue(values[0])
			continue
		}
		list := make([]any, len(values))
		for i, v := range values {
			list[i] = formValue(v)
		}
		payload[key] = list
	}

	field := DefaultFileField
	if names := form.Value[FileFieldParam]; len(names) > 0 && strings.TrimSpace(names[0]) != "" {
		field = strings.TrimSpace(names[0])
	}
	headers := form.File[field]
	if len(headers) == 0 {
		return payload, nil, func() { _ = form.RemoveAll() }, nil
	}

	file, err := headers[0].Open()
	if err != nil {
		_ = form.RemoveAll()
		return nil, nil, noop, badRequest(h.kind(), op, "unreadable file part")
	}
	upload := uploadFrom(headers[0], file)
	if alt, ok := payload["altText"].(string); ok {
		upload.AltText = alt
	}
	cleanup := func() {
		_ = file.Close()
		_ = form.RemoveAll()
	}
	return payload, upload, cleanup, nil
}

func uploadFrom(header *multipart.FileHeader, file multipart.File) *simplelisting.Upload {
	return &simplelisting.Upload{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Reader:      file,
	}
}

// formValue decodes JSON objects and arrays sent as form values, so linked
// objects can be embedded in multipart requests.
func formValue(s string) any {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var v any
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			return v
		}
	}
	return s
}

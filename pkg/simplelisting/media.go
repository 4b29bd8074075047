package simplelisting

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/simple-listing/pkg/simplelisting/objectkey"
)

// MediaType classifies an uploaded file.
type MediaType string

const (
	MediaImage   MediaType = "image"
	MediaVideo   MediaType = "video"
	MediaAudio   MediaType = "audio"
	MediaFile    MediaType = "file"
	MediaUnknown MediaType = "unknown"
)

var mediaExtensions = map[string]MediaType{
	".png": MediaImage, ".jpg": MediaImage, ".gif": MediaImage, ".jpeg": MediaImage,
	".bmp": MediaImage, ".svg": MediaImage, ".webp": MediaImage,

	".mp4": MediaVideo, ".avi": MediaVideo, ".mov": MediaVideo, ".wmv": MediaVideo,
	".flv": MediaVideo, ".mkv": MediaVideo, ".webm": MediaVideo,

	".mp3": MediaAudio, ".wav": MediaAudio, ".ogg": MediaAudio, ".wma": MediaAudio,
	".aac": MediaAudio, ".flac": MediaAudio, ".alac": MediaAudio,

	".pdf": MediaFile, ".doc": MediaFile, ".docx": MediaFile, ".xls": MediaFile,
	".xlsx": MediaFile, ".csv": MediaFile,
}

// ClassifyMedia returns the media type of fileName by extension.
func ClassifyMedia(fileName string) MediaType {
	if t, ok := mediaExtensions[strings.ToLower(filepath.Ext(fileName))]; ok {
		return t
	}
	return MediaUnknown
}

// ParseMediaType parses a media type path segment.
func ParseMediaType(s string) (MediaType, bool) {
	switch t := MediaType(s); t {
	case MediaImage, MediaVideo, MediaAudio, MediaFile:
		return t, true
	}
	return MediaUnknown, false
}

// ContentType is the content type used when serving media of type t.
func (t MediaType) ContentType() string {
	switch t {
	case MediaImage:
		return "image/jpeg"
	case MediaVideo:
		return "video/mp4"
	case MediaAudio:
		return "audio/mpeg"
	}
	return "application/octet-stream"
}

// MediaURL is the public url of an uploaded file.
func MediaURL(t MediaType, fileName string) string {
	return "/uploads/" + string(t) + "/" + fileName
}

// DefaultUploadTimeout bounds a single upload stream.
const DefaultUploadTimeout = 5 * time.Minute

// MediaResolver streams uploads to a BlobStore and resolves them to Media
// documents, reusing an existing document with the same url.
type MediaResolver struct {
	store   Store
	blobs   BlobStore
	kind    Kind
	keys    objectkey.Generator
	timeout time.Duration
	events  EventSink
	logger  *slog.Logger

	now    func() time.Time
	newID  func() string
	suffix func() int
}

// MediaOption configures a MediaResolver
type MediaOption func(*MediaResolver)

func WithUploadTimeout(d time.Duration) MediaOption {
	return func(m *MediaResolver) { m.timeout = d }
}

func WithObjectKeyGenerator(g objectkey.Generator) MediaOption {
	return func(m *MediaResolver) { m.keys = g }
}

func WithMediaEventSink(sink EventSink) MediaOption {
	return func(m *MediaResolver) { m.events = sink }
}

func WithMediaLogger(logger *slog.Logger) MediaOption {
	return func(m *MediaResolver) { m.logger = logger }
}

// WithMediaKind overrides the kind used for Media documents.
func WithMediaKind(k Kind) MediaOption {
	return func(m *MediaResolver) { m.kind = k }
}

// NewMediaResolver creates a resolver writing Media documents to store and
// bytes to blobs.
func NewMediaResolver(store Store, blobs BlobStore, opts ...MediaOption) (*MediaResolver, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if blobs == nil {
		return nil, errors.New("blob store is required")
	}
	m := &MediaResolver{
		store:   store,
		blobs:   blobs,
		kind:    MediaKind(),
		keys:    objectkey.NewTypedPathGenerator(),
		timeout: DefaultUploadTimeout,
		events:  NewNoopEventSink(),
		logger:  slog.Default(),
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
		suffix:  func() int { return rand.IntN(10000) },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Resolve stores the upload and returns its Media document.
func (m *MediaResolver) Resolve(ctx context.Context, principal *Principal, up Upload) (*Document, error) {
	const op = "upload"
	if principal == nil || principal.ID == "" {
		return nil, unauthorizedError(m.kind.Name, op)
	}
	if up.Reader == nil {
		return nil, validationError(m.kind.Name, op, "file", "file is required")
	}
	name, err := baseName(up.FileName)
	if err != nil {
		return nil, validationError(m.kind.Name, op, "file", err.Error())
	}
	mediaType := ClassifyMedia(name)
	if mediaType == MediaUnknown {
		return nil, validationError(m.kind.Name, op, "file", fmt.Sprintf("unsupported file type %q", filepath.Ext(name)))
	}

	key := m.keys.GenerateKey(string(mediaType), name)
	if err := m.stream(ctx, key, mediaType, up); err != nil {
		return nil, internalError(m.kind.Name, op, "", err)
	}

	url := MediaURL(mediaType, name)
	existing, err := m.findByURL(ctx, url)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, internalError(m.kind.Name, op, "", err)
	}

	now := m.now()
	doc := &Document{
		ID:        m.newID(),
		Owner:     principal.ID,
		CreatedAt: now,
		UpdatedAt: now,
		Fields: map[string]any{
			"fileName":  name,
			"mediaType": string(mediaType),
			"altText":   up.AltText,
			"slug":      fmt.Sprintf("%s-%d-%d", mediaType, now.UnixMilli(), m.suffix()),
			"url":       url,
		},
	}
	if err := m.store.Insert(ctx, m.kind.Collection, doc); err != nil {
		if errors.Is(err, ErrConflict) {
			// Lost a race against an identical upload.
			if winner, ferr := m.findByURL(ctx, url); ferr == nil {
				return winner, nil
			}
		}
		return nil, internalError(m.kind.Name, op, doc.ID, err)
	}

	if err := m.events.MediaUploaded(ctx, doc); err != nil {
		m.logger.Warn("media event failed", "id", doc.ID, "err", err)
	}
	m.logger.Info("media uploaded", "id", doc.ID, "url", url, "owner", principal.ID)
	return doc, nil
}

// Open streams a stored media file.
func (m *MediaResolver) Open(ctx context.Context, mediaType MediaType, fileName string) (io.ReadCloser, *ObjectMeta, error) {
	name, err := baseName(fileName)
	if err != nil || name != fileName {
		return nil, nil, ErrBlobNotFound
	}
	key := m.keys.GenerateKey(string(mediaType), name)
	meta, err := m.blobs.GetObjectMeta(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	rc, err := m.blobs.Download(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	return rc, meta, nil
}

func (m *MediaResolver) findByURL(ctx context.Context, url string) (*Document, error) {
	return m.store.FindOne(ctx, m.kind.Collection, Where(Eq("url", url)))
}

// stream writes the upload under key, bounded by the upload timeout. A failed
// or timed out upload releases whatever was written, unless the key already
// held a blob before the upload started. Backends leave that blob intact when
// a replacement fails.
func (m *MediaResolver) stream(ctx context.Context, key string, mediaType MediaType, up Upload) error {
	_, metaErr := m.blobs.GetObjectMeta(ctx, key)
	existed := metaErr == nil
	if metaErr != nil && !errors.Is(metaErr, ErrBlobNotFound) {
		return metaErr
	}

	uctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	contentType := up.ContentType
	if contentType == "" {
		contentType = mediaType.ContentType()
	}
	err := m.blobs.UploadWithParams(uctx, &contextReader{ctx: uctx, r: up.Reader}, UploadParams{
		ObjectKey: key,
		MimeType:  contentType,
	})
	if err == nil {
		err = uctx.Err()
	}
	if err == nil {
		return nil
	}
	if existed {
		m.logger.Warn("replacement upload failed, keeping previous blob", "key", key, "err", err)
		return err
	}

	cleanupCtx, cleanupCancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cleanupCancel()
	if derr := m.blobs.Delete(cleanupCtx, key); derr != nil && !errors.Is(derr, ErrBlobNotFound) {
		m.logger.Warn("failed to release partial upload", "key", key, "err", derr)
	}
	return err
}

func baseName(fileName string) (string, error) {
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(fileName), "\\", "/"))
	if name == "" || name == "." || name == ".." || name == "/" {
		return "", fmt.Errorf("invalid file name %q", fileName)
	}
	return name, nil
}

// contextReader fails reads once ctx is done so that uploads stop streaming.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

package memory

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/tendant/simple-listing/pkg/simplelisting"
)

type object struct {
	data      []byte
	mimeType  string
	updatedAt time.Time
}

// Backend is an in-memory implementation of the simplelisting.BlobStore interface
type Backend struct {
	mu      sync.RWMutex
	objects map[string]object
}

// New creates a new in-memory storage backend
func New() *Backend {
	return &Backend{objects: make(map[string]object)}
}

// GetObjectMeta retrieves metadata for an object in memory
func (b *Backend) GetObjectMeta(ctx context.Context, objectKey string) (*simplelisting.ObjectMeta, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[objectKey]
	if !exists {
		return nil, simplelisting.ErrBlobNotFound
	}
	return &simplelisting.ObjectMeta{
		Key:         objectKey,
		Size:        int64(len(obj.data)),
		ContentType: obj.mimeType,
		UpdatedAt:   obj.updatedAt,
		Metadata:    map[string]string{"mime_type": obj.mimeType},
	}, nil
}

// Upload uploads content directly
func (b *Backend) Upload(ctx context.Context, objectKey string, reader io.Reader) error {
	return b.UploadWithParams(ctx, reader, simplelisting.UploadParams{ObjectKey: objectKey})
}

// UploadWithParams buffers the whole stream before storing it, so a failed
// read leaves no object behind.
func (b *Backend) UploadWithParams(ctx context.Context, reader io.Reader, params simplelisting.UploadParams) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return &simplelisting.StorageError{Backend: "memory", Key: params.ObjectKey, Op: "upload", Err: err}
	}
	if err := ctx.Err(); err != nil {
		return &simplelisting.StorageError{Backend: "memory", Key: params.ObjectKey, Op: "upload", Err: err}
	}
	mimeType := params.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[params.ObjectKey] = object{data: data, mimeType: mimeType, updatedAt: time.Now().UTC()}
	return nil
}

// Download downloads content directly
func (b *Backend) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[objectKey]
	if !exists {
		return nil, simplelisting.ErrBlobNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

// Delete deletes content
func (b *Backend) Delete(ctx context.Context, objectKey string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.objects[objectKey]; !exists {
		return simplelisting.ErrBlobNotFound
	}
	delete(b.objects, objectKey)
	return nil
}

// Len returns the number of stored objects.
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.objects)
}

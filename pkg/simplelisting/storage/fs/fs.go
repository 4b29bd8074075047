package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/tendant/simple-listing/pkg/simplelisting"
)

// Backend is a filesystem implementation of the simplelisting.BlobStore interface
type Backend struct {
	baseDir string
}

// Config options for the filesystem backend
type Config struct {
	BaseDir string // Base directory for storing files
}

// New creates a new filesystem storage backend
func New(config Config) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}
	baseDir, err := filepath.Abs(config.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory: %w", err)
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &Backend{baseDir: baseDir}, nil
}

// path maps an object key below baseDir, rejecting keys that escape it.
func (b *Backend) path(objectKey string) (string, error) {
	p := filepath.Join(b.baseDir, filepath.FromSlash(objectKey))
	if p == b.baseDir || !strings.HasPrefix(p, b.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid object key %q", objectKey)
	}
	return p, nil
}

// GetObjectMeta retrieves metadata for an object in the filesystem
func (b *Backend) GetObjectMeta(ctx context.Context, objectKey string) (*simplelisting.ObjectMeta, error) {
	filePath, err := b.path(objectKey)
	if err != nil {
		return nil, simplelisting.ErrBlobNotFound
	}
	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return nil, simplelisting.ErrBlobNotFound
	} else if err != nil {
		return nil, &simplelisting.StorageError{Backend: "fs", Key: objectKey, Op: "stat", Err: err}
	}

	contentType := "application/octet-stream"
	if file, err := os.Open(filePath); err == nil {
		defer file.Close()
		buffer := make([]byte, 512)
		if n, err := file.Read(buffer); err == nil {
			contentType = http.DetectContentType(buffer[:n])
		}
	}

	return &simplelisting.ObjectMeta{
		Key:         objectKey,
		Size:        info.Size(),
		ContentType: contentType,
		UpdatedAt:   info.ModTime(),
		Metadata:    map[string]string{"content_type": contentType},
	}, nil
}

// Upload writes to a temporary file and renames it into place, so readers
// never observe a partial object.
func (b *Backend) Upload(ctx context.Context, objectKey string, reader io.Reader) error {
	filePath, err := b.path(objectKey)
	if err != nil {
		return &simplelisting.StorageError{Backend: "fs", Key: objectKey, Op: "upload", Err: err}
	}
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &simplelisting.StorageError{Backend: "fs", Key: objectKey, Op: "upload", Err: err}
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return &simplelisting.StorageError{Backend: "fs", Key: objectKey, Op: "upload", Err: err}
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		return &simplelisting.StorageError{Backend: "fs", Key: objectKey, Op: "upload", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &simplelisting.StorageError{Backend: "fs", Key: objectKey, Op: "upload", Err: err}
	}
	if err := ctx.Err(); err != nil {
		return &simplelisting.StorageError{Backend: "fs", Key: objectKey, Op: "upload", Err: err}
	}
	if err := os.Rename(tmp.Name(), filePath); err != nil {
		return &simplelisting.StorageError{Backend: "fs", Key: objectKey, Op: "upload", Err: err}
	}
	return nil
}

// UploadWithParams uploads content; the MIME type is detected on read
func (b *Backend) UploadWithParams(ctx context.Context, reader io.Reader, params simplelisting.UploadParams) error {
	return b.Upload(ctx, params.ObjectKey, reader)
}

// Download downloads content directly from the filesystem
func (b *Backend) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	filePath, err := b.path(objectKey)
	if err != nil {
		return nil, simplelisting.ErrBlobNotFound
	}
	file, err := os.Open(filePath)
	if os.IsNotExist(err) {
		return nil, simplelisting.ErrBlobNotFound
	} else if err != nil {
		return nil, &simplelisting.StorageError{Backend: "fs", Key: objectKey, Op: "download", Err: err}
	}
	return file, nil
}

// Delete deletes content from the filesystem
func (b *Backend) Delete(ctx context.Context, objectKey string) error {
	filePath, err := b.path(objectKey)
	if err != nil {
		return simplelisting.ErrBlobNotFound
	}
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return simplelisting.ErrBlobNotFound
	}
	if err := os.Remove(filePath); err != nil {
		return &simplelisting.StorageError{Backend: "fs", Key: objectKey, Op: "delete", Err: err}
	}
	b.cleanupEmptyDirectories(filepath.Dir(filePath))
	return nil
}

// cleanupEmptyDirectories recursively removes empty directories up to baseDir
func (b *Backend) cleanupEmptyDirectories(dir string) {
	if dir == b.baseDir || !strings.HasPrefix(dir, b.baseDir) {
		return
	}
	if entries, err := os.ReadDir(dir); err == nil && len(entries) == 0 {
		if os.Remove(dir) == nil {
			b.cleanupEmptyDirectories(filepath.Dir(dir))
		}
	}
}

package simplelisting

import (
	"context"
	"io"
)

// Service is the CRUD surface of one resource kind.
type Service interface {
	Kind() Kind

	Create(ctx context.Context, principal *Principal, req CreateRequest) (*Document, error)
	CreateMany(ctx context.Context, principal *Principal, reqs []CreateRequest) (*BatchResult, error)

	Get(ctx context.Context, id string) (*Document, error)
	GetBySlug(ctx context.Context, slug string) (*Document, error)
	List(ctx context.Context, req ListRequest) (*ListResult, error)

	Update(ctx context.Context, principal *Principal, req UpdateRequest) (*Document, error)
	UpdateMany(ctx context.Context, principal *Principal, reqs []UpdateRequest) (*BatchResult, error)

	Delete(ctx context.Context, principal *Principal, id string) error
	DeleteMany(ctx context.Context, principal *Principal, ids []string) (*BatchResult, error)
}

// Store persists documents grouped by collection.
//
// Implementations return ErrNotFound when a document is missing and
// ErrConflict when a store-level uniqueness constraint rejects a write.
// Documents passed in and returned are owned by the caller.
type Store interface {
	Insert(ctx context.Context, collection string, doc *Document) error
	Get(ctx context.Context, collection, id string) (*Document, error)
	// FindOne returns the first match in default order.
	FindOne(ctx context.Context, collection string, q Query) (*Document, error)
	// Find returns matches ordered by creation time.
	Find(ctx context.Context, collection string, q Query, opts FindOptions) ([]*Document, error)
	Count(ctx context.Context, collection string, q Query) (int64, error)
	// Update replaces the stored document with the same id.
	Update(ctx context.Context, collection string, doc *Document) error
	Delete(ctx context.Context, collection, id string) error
}

// BlobStore defines the interface for binary storage backends
type BlobStore interface {
	Upload(ctx context.Context, objectKey string, reader io.Reader) error
	UploadWithParams(ctx context.Context, reader io.Reader, params UploadParams) error
	// Download returns ErrBlobNotFound for unknown keys.
	Download(ctx context.Context, objectKey string) (io.ReadCloser, error)
	Delete(ctx context.Context, objectKey string) error
	GetObjectMeta(ctx context.Context, objectKey string) (*ObjectMeta, error)
}

// EventSink receives resource lifecycle events
type EventSink interface {
	ResourceCreated(ctx context.Context, kind string, doc *Document) error
	ResourceUpdated(ctx context.Context, kind string, doc *Document) error
	ResourceDeleted(ctx context.Context, kind string, id string) error
	MediaUploaded(ctx context.Context, doc *Document) error
}

// PrincipalDirectory answers whether a principal id is known.
type PrincipalDirectory interface {
	PrincipalExists(ctx context.Context, id string) (bool, error)
}

package gridfs

import (
	"context"
	"errors"
	"io"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tendant/simple-listing/pkg/simplelisting"
)

// DefaultBucket is the GridFS bucket holding uploads.
const DefaultBucket = "uploads"

// Config options for the GridFS backend
type Config struct {
	BucketName     string
	ChunkSizeBytes int32
}

// Backend stores blobs as GridFS files named by object key. Re-uploading a
// key replaces the previous revision once the new one is complete.
type Backend struct {
	bucket *gridfs.Bucket
}

type fileInfo struct {
	ID         primitive.ObjectID `bson:"_id"`
	Length     int64              `bson:"length"`
	UploadDate time.Time          `bson:"uploadDate"`
	Metadata   bson.M             `bson:"metadata"`
}

// New creates a GridFS backend in db
func New(db *mongo.Database, config Config) (*Backend, error) {
	if db == nil {
		return nil, errors.New("database is required")
	}
	name := config.BucketName
	if name == "" {
		name = DefaultBucket
	}
	opts := options.GridFSBucket().SetName(name)
	if config.ChunkSizeBytes > 0 {
		opts.SetChunkSizeBytes(config.ChunkSizeBytes)
	}
	bucket, err := gridfs.NewBucket(db, opts)
	if err != nil {
		return nil, err
	}
	return &Backend{bucket: bucket}, nil
}

func (b *Backend) Upload(ctx context.Context, objectKey string, reader io.Reader) error {
	return b.UploadWithParams(ctx, reader, simplelisting.UploadParams{ObjectKey: objectKey})
}

// UploadWithParams streams reader into a new file revision. The driver aborts
// the revision and removes its chunks when reading fails, leaving older
// revisions untouched. Superseded revisions are removed after success.
func (b *Backend) UploadWithParams(ctx context.Context, reader io.Reader, params simplelisting.UploadParams) error {
	opts := options.GridFSUpload().SetMetadata(bson.D{{Key: "contentType", Value: params.MimeType}})
	id, err := b.bucket.UploadFromStream(params.ObjectKey, &contextReader{ctx: ctx, r: reader}, opts)
	if err != nil {
		return &simplelisting.StorageError{Backend: "gridfs", Key: params.ObjectKey, Op: "upload", Err: err}
	}
	return b.prune(ctx, params.ObjectKey, id)
}

// prune deletes every revision of objectKey except keep.
func (b *Backend) prune(ctx context.Context, objectKey string, keep primitive.ObjectID) error {
	files, err := b.find(ctx, objectKey, 0)
	if err != nil {
		return err
	}
	for _, f := range files {
		if f.ID == keep {
			continue
		}
		if err := b.bucket.Delete(f.ID); err != nil && !errors.Is(err, gridfs.ErrFileNotFound) {
			return &simplelisting.StorageError{Backend: "gridfs", Key: objectKey, Op: "prune", Err: err}
		}
	}
	return nil
}

// Revisions reports how many stored revisions objectKey has.
func (b *Backend) Revisions(ctx context.Context, objectKey string) (int, error) {
	files, err := b.find(ctx, objectKey, 0)
	if err != nil {
		return 0, err
	}
	return len(files), nil
}

func (b *Backend) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	stream, err := b.bucket.OpenDownloadStreamByName(objectKey)
	if err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, simplelisting.ErrBlobNotFound
		}
		return nil, &simplelisting.StorageError{Backend: "gridfs", Key: objectKey, Op: "download", Err: err}
	}
	return stream, nil
}

// Delete removes every revision of objectKey.
func (b *Backend) Delete(ctx context.Context, objectKey string) error {
	files, err := b.find(ctx, objectKey, 0)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return simplelisting.ErrBlobNotFound
	}
	for _, f := range files {
		if err := b.bucket.Delete(f.ID); err != nil && !errors.Is(err, gridfs.ErrFileNotFound) {
			return &simplelisting.StorageError{Backend: "gridfs", Key: objectKey, Op: "delete", Err: err}
		}
	}
	return nil
}

func (b *Backend) GetObjectMeta(ctx context.Context, objectKey string) (*simplelisting.ObjectMeta, error) {
	files, err := b.find(ctx, objectKey, 1)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, simplelisting.ErrBlobNotFound
	}
	f := files[0]
	contentType, _ := f.Metadata["contentType"].(string)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &simplelisting.ObjectMeta{
		Key:         objectKey,
		Size:        f.Length,
		ContentType: contentType,
		UpdatedAt:   f.UploadDate,
		ETag:        f.ID.Hex(),
		Metadata:    map[string]string{"content_type": contentType},
	}, nil
}

// find returns the revisions of objectKey, newest first.
func (b *Backend) find(ctx context.Context, objectKey string, limit int32) ([]fileInfo, error) {
	opts := options.GridFSFind().SetSort(bson.D{{Key: "uploadDate", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cursor, err := b.bucket.Find(bson.M{"filename": objectKey}, opts)
	if err != nil {
		return nil, &simplelisting.StorageError{Backend: "gridfs", Key: objectKey, Op: "find", Err: err}
	}
	var files []fileInfo
	if err := cursor.All(ctx, &files); err != nil {
		return nil, &simplelisting.StorageError{Backend: "gridfs", Key: objectKey, Op: "find", Err: err}
	}
	return files, nil
}

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

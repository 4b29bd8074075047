package gridfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tendant/simple-listing/pkg/simplelisting"
)

func TestNew_RequiresDatabase(t *testing.T) {
	_, err := New(nil, Config{})
	require.Error(t, err)
}

func TestContextReader_StopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &contextReader{ctx: ctx, r: bytes.NewReader([]byte("abcdef"))}

	buf := make([]byte, 3)
	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	cancel()
	_, err = r.Read(buf)
	assert.True(t, errors.Is(err, context.Canceled))
}

// TestGridFSBackend_Integration needs a MongoDB server at MONGO_TEST_URI.
func TestGridFSBackend_Integration(t *testing.T) {
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	defer client.Disconnect(context.Background())

	db := client.Database(fmt.Sprintf("listing_test_%d", time.Now().UnixNano()))
	defer db.Drop(context.Background())

	backend, err := New(db, Config{})
	require.NoError(t, err)

	key := "image/house.jpg"
	require.NoError(t, backend.UploadWithParams(ctx, bytes.NewReader([]byte("v1")), simplelisting.UploadParams{ObjectKey: key, MimeType: "image/jpeg"}))
	require.NoError(t, backend.Upload(ctx, key, bytes.NewReader([]byte("version2"))))

	meta, err := backend.GetObjectMeta(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(8), meta.Size)

	revisions, err := backend.Revisions(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 1, revisions)

	failing := io.MultiReader(bytes.NewReader([]byte("partial")), iotest.ErrReader(errors.New("connection reset")))
	require.Error(t, backend.Upload(ctx, key, failing))
	meta, err = backend.GetObjectMeta(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(8), meta.Size)

	rc, err := backend.Download(ctx, key)
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "version2", string(data))

	require.NoError(t, backend.Delete(ctx, key))
	_, err = backend.Download(ctx, key)
	assert.ErrorIs(t, err, simplelisting.ErrBlobNotFound)
	assert.ErrorIs(t, backend.Delete(ctx, key), simplelisting.ErrBlobNotFound)
}

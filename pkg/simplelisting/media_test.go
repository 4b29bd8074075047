package simplelisting_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-listing/pkg/simplelisting"
	"github.com/tendant/simple-listing/pkg/simplelisting/store/memory"
	memorystorage "github.com/tendant/simple-listing/pkg/simplelisting/storage/memory"
)

func TestClassifyMedia(t *testing.T) {
	tests := []struct {
		fileName string
		want     simplelisting.MediaType
	}{
		{"photo.png", simplelisting.MediaImage},
		{"PHOTO.JPEG", simplelisting.MediaImage},
		{"tour.mp4", simplelisting.MediaVideo},
		{"tour.webm", simplelisting.MediaVideo},
		{"song.flac", simplelisting.MediaAudio},
		{"brochure.pdf", simplelisting.MediaFile},
		{"prices.csv", simplelisting.MediaFile},
		{"archive.zip", simplelisting.MediaUnknown},
		{"noextension", simplelisting.MediaUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.fileName, func(t *testing.T) {
			assert.Equal(t, tt.want, simplelisting.ClassifyMedia(tt.fileName))
		})
	}
}

func TestParseMediaType(t *testing.T) {
	mt, ok := simplelisting.ParseMediaType("video")
	assert.True(t, ok)
	assert.Equal(t, simplelisting.MediaVideo, mt)
	assert.Equal(t, "video/mp4", mt.ContentType())

	_, ok = simplelisting.ParseMediaType("unknown")
	assert.False(t, ok)
	_, ok = simplelisting.ParseMediaType("../etc")
	assert.False(t, ok)
}

func newResolver(t *testing.T, store simplelisting.Store, blobs simplelisting.BlobStore, opts ...simplelisting.MediaOption) *simplelisting.MediaResolver {
	t.Helper()
	m, err := simplelisting.NewMediaResolver(store, blobs, opts...)
	require.NoError(t, err)
	return m
}

func TestNewMediaResolver_RequiresStores(t *testing.T) {
	_, err := simplelisting.NewMediaResolver(nil, memorystorage.New())
	assert.Error(t, err)
	_, err = simplelisting.NewMediaResolver(memory.New(), nil)
	assert.Error(t, err)
}

func TestMediaResolver_Resolve(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	blobs := memorystorage.New()
	m := newResolver(t, store, blobs)

	doc, err := m.Resolve(ctx, alice, simplelisting.Upload{
		FileName: "C:\\Users\\me\\front.png",
		AltText:  "front door",
		Reader:   strings.NewReader("png bytes"),
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", doc.Owner)
	assert.Equal(t, "front.png", doc.String("fileName"))
	assert.Equal(t, "image", doc.String("mediaType"))
	assert.Equal(t, "front door", doc.String("altText"))
	assert.Equal(t, "/uploads/image/front.png", doc.String("url"))
	assert.Regexp(t, `^image-\d+-\d+$`, doc.String("slug"))

	rc, meta, err := m.Open(ctx, simplelisting.MediaImage, "front.png")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "png bytes", string(data))
	assert.Equal(t, "image/jpeg", meta.ContentType)

	t.Run("same url reuses the document", func(t *testing.T) {
		again, err := m.Resolve(ctx, bob, simplelisting.Upload{FileName: "front.png", Reader: strings.NewReader("other bytes")})
		require.NoError(t, err)
		assert.Equal(t, doc.ID, again.ID)
		n, err := store.Count(ctx, "media", simplelisting.Query{})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("open rejects paths", func(t *testing.T) {
		_, _, err := m.Open(ctx, simplelisting.MediaImage, "../front.png")
		assert.ErrorIs(t, err, simplelisting.ErrBlobNotFound)
		_, _, err = m.Open(ctx, simplelisting.MediaImage, "missing.png")
		assert.ErrorIs(t, err, simplelisting.ErrBlobNotFound)
	})
}

func TestMediaResolver_Rejects(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	blobs := memorystorage.New()
	m := newResolver(t, store, blobs)

	_, err := m.Resolve(ctx, nil, simplelisting.Upload{FileName: "a.png", Reader: strings.NewReader("x")})
	assert.ErrorIs(t, err, simplelisting.ErrUnauthorized)

	_, err = m.Resolve(ctx, alice, simplelisting.Upload{FileName: "malware.exe", Reader: strings.NewReader("x")})
	assert.ErrorIs(t, err, simplelisting.ErrValidation)
	assert.Equal(t, "file", simplelisting.FieldOf(err))

	_, err = m.Resolve(ctx, alice, simplelisting.Upload{FileName: "a.png"})
	assert.ErrorIs(t, err, simplelisting.ErrValidation)

	_, err = m.Resolve(ctx, alice, simplelisting.Upload{FileName: "..", Reader: strings.NewReader("x")})
	assert.ErrorIs(t, err, simplelisting.ErrValidation)

	assert.Equal(t, 0, blobs.Len())
	n, err := store.Count(ctx, "media", simplelisting.Query{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

type failingReader struct {
	data []byte
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if len(r.data) > 0 {
		n := copy(p, r.data)
		r.data = r.data[n:]
		return n, nil
	}
	return 0, r.err
}

// slowReader produces bytes forever, one small chunk per tick.
type slowReader struct{ tick time.Duration }

func (r slowReader) Read(p []byte) (int, error) {
	time.Sleep(r.tick)
	if len(p) == 0 {
		return 0, nil
	}
	p[0] = 'x'
	return 1, nil
}

// trackingBlobs records deleted keys.
type trackingBlobs struct {
	*memorystorage.Backend
	mu      sync.Mutex
	deleted []string
}

func (b *trackingBlobs) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	b.deleted = append(b.deleted, key)
	b.mu.Unlock()
	return b.Backend.Delete(ctx, key)
}

func TestMediaResolver_FailedStreamLeavesNothing(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	blobs := &trackingBlobs{Backend: memorystorage.New()}
	m := newResolver(t, store, blobs)

	readErr := errors.New("connection reset")
	_, err := m.Resolve(ctx, alice, simplelisting.Upload{
		FileName: "tour.mp4",
		Reader:   &failingReader{data: []byte("partial"), err: readErr},
	})
	assert.ErrorIs(t, err, simplelisting.ErrInternal)
	assert.ErrorIs(t, err, readErr)

	assert.Equal(t, []string{"video/tour.mp4"}, blobs.deleted)
	assert.Equal(t, 0, blobs.Len())
	n, err := store.Count(ctx, "media", simplelisting.Query{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestMediaResolver_FailedReuploadKeepsExistingBlob(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	blobs := &trackingBlobs{Backend: memorystorage.New()}
	m := newResolver(t, store, blobs)

	first, err := m.Resolve(ctx, alice, simplelisting.Upload{FileName: "a.png", Reader: strings.NewReader("good bytes")})
	require.NoError(t, err)

	readErr := errors.New("connection reset")
	_, err = m.Resolve(ctx, alice, simplelisting.Upload{
		FileName: "a.png",
		Reader:   &failingReader{data: []byte("partial"), err: readErr},
	})
	assert.ErrorIs(t, err, simplelisting.ErrInternal)
	assert.Empty(t, blobs.deleted)

	row, err := store.Get(ctx, "media", first.ID)
	require.NoError(t, err)
	assert.Equal(t, "/uploads/image/a.png", row.String("url"))

	rc, _, err := m.Open(ctx, simplelisting.MediaImage, "a.png")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "good bytes", string(data))
}

func TestMediaResolver_UploadTimeout(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	blobs := memorystorage.New()
	m := newResolver(t, store, blobs, simplelisting.WithUploadTimeout(50*time.Millisecond))

	start := time.Now()
	_, err := m.Resolve(ctx, alice, simplelisting.Upload{
		FileName: "song.mp3",
		Reader:   slowReader{tick: 5 * time.Millisecond},
	})
	assert.ErrorIs(t, err, simplelisting.ErrInternal)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, 0, blobs.Len())
}

// staleStore misses the first url lookup, as a concurrent upload would.
type staleStore struct {
	*memory.Store
	mu     sync.Mutex
	missed bool
}

func (s *staleStore) FindOne(ctx context.Context, collection string, q simplelisting.Query) (*simplelisting.Document, error) {
	s.mu.Lock()
	miss := !s.missed
	s.missed = true
	s.mu.Unlock()
	if miss {
		return nil, simplelisting.ErrNotFound
	}
	return s.Store.FindOne(ctx, collection, q)
}

func TestMediaResolver_ConflictReturnsWinner(t *testing.T) {
	ctx := context.Background()
	store := &staleStore{Store: memory.New(memory.WithUniqueIndex("media", "url"))}
	require.NoError(t, store.Insert(ctx, "media", &simplelisting.Document{
		ID:    "winner",
		Owner: "bob",
		Fields: map[string]any{
			"fileName": "plan.pdf", "mediaType": "file", "url": "/uploads/file/plan.pdf",
		},
	}))
	m := newResolver(t, store, memorystorage.New())

	doc, err := m.Resolve(ctx, alice, simplelisting.Upload{FileName: "plan.pdf", Reader: bytes.NewReader([]byte("%PDF"))})
	require.NoError(t, err)
	assert.Equal(t, "winner", doc.ID)
}

func TestCreate_WithUpload(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	media, err := env.svc("media").Create(ctx, alice, simplelisting.CreateRequest{
		Payload: map[string]any{"altText": "kitchen"},
		Upload:  &simplelisting.Upload{FileName: "kitchen.jpg", Reader: strings.NewReader("jpg")},
	})
	require.NoError(t, err)
	assert.Equal(t, "kitchen", media.String("altText"))
	assert.Equal(t, []string{media.ID}, env.events.media)

	category, err := env.svc("categories").Create(ctx, alice, simplelisting.CreateRequest{
		Payload: map[string]any{"name": "Villas", "slug": "villas"},
		Upload:  &simplelisting.Upload{FileName: "villa.png", Reader: strings.NewReader("png")},
	})
	require.NoError(t, err)
	require.Len(t, category.Fields["media"], 1)
	mediaID := category.Fields["media"].([]any)[0].(string)

	linked, err := env.svc("media").Get(ctx, mediaID)
	require.NoError(t, err)
	assert.Equal(t, "/uploads/image/villa.png", linked.String("url"))

	updated, err := env.svc("categories").Update(ctx, alice, simplelisting.UpdateRequest{
		ID:     category.ID,
		Upload: &simplelisting.Upload{FileName: "pool.png", Reader: strings.NewReader("png")},
	})
	require.NoError(t, err)
	assert.Len(t, updated.Fields["media"], 2)
	assert.Equal(t, mediaID, updated.Fields["media"].([]any)[0])

	_, err = env.svc("leads").Create(ctx, alice, simplelisting.CreateRequest{
		Payload: map[string]any{"name": "N", "email": "n@example.com", "message": "hi"},
		Upload:  &simplelisting.Upload{FileName: "a.png", Reader: strings.NewReader("png")},
	})
	assert.ErrorIs(t, err, simplelisting.ErrValidation)
}

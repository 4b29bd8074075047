package simplelisting_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-listing/pkg/simplelisting"
	"github.com/tendant/simple-listing/pkg/simplelisting/store/memory"
	memorystorage "github.com/tendant/simple-listing/pkg/simplelisting/storage/memory"
)

var (
	alice = &simplelisting.Principal{ID: "alice"}
	bob   = &simplelisting.Principal{ID: "bob"}
	admin = &simplelisting.Principal{ID: "root", Roles: []string{simplelisting.DefaultAdminRole}}
)

type testEnv struct {
	services map[string]simplelisting.Service
	store    *memory.Store
	blobs    *memorystorage.Backend
	media    *simplelisting.MediaResolver
	events   *recordingSink
}

func (e *testEnv) svc(collection string) simplelisting.Service {
	return e.services[collection]
}

// steppingClock returns a clock that advances one second per call.
func steppingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func newTestEnv(t *testing.T, opts ...simplelisting.Option) *testEnv {
	t.Helper()
	store := memory.New(memory.WithUniqueIndex("media", "url"))
	blobs := memorystorage.New()
	events := &recordingSink{}
	media, err := simplelisting.NewMediaResolver(store, blobs, simplelisting.WithMediaEventSink(events))
	require.NoError(t, err)

	base := []simplelisting.Option{
		simplelisting.WithStore(store),
		simplelisting.WithMediaResolver(media),
		simplelisting.WithEventSink(events),
		simplelisting.WithClock(steppingClock()),
	}
	services, err := simplelisting.NewServices(simplelisting.DefaultCatalog(), append(base, opts...)...)
	require.NoError(t, err)
	return &testEnv{services: services, store: store, blobs: blobs, media: media, events: events}
}

type recordingSink struct {
	mu      sync.Mutex
	created []string
	updated []string
	deleted []string
	media   []string
}

func (r *recordingSink) ResourceCreated(ctx context.Context, kind string, doc *simplelisting.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, kind+":"+doc.ID)
	return nil
}

func (r *recordingSink) ResourceUpdated(ctx context.Context, kind string, doc *simplelisting.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updated = append(r.updated, kind+":"+doc.ID)
	return nil
}

func (r *recordingSink) ResourceDeleted(ctx context.Context, kind string, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, kind+":"+id)
	return nil
}

func (r *recordingSink) MediaUploaded(ctx context.Context, doc *simplelisting.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.media = append(r.media, doc.ID)
	return nil
}

type staticDirectory map[string]bool

func (d staticDirectory) PrincipalExists(ctx context.Context, id string) (bool, error) {
	return d[id], nil
}

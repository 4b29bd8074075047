package simplelisting_test

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/tendant/simple-listing/pkg/simplelisting"
	"github.com/tendant/simple-listing/pkg/simplelisting/store/memory"
)

func TestServiceCreation(t *testing.T) {
	tests := []struct {
		name        string
		kind        simplelisting.Kind
		options     []simplelisting.Option
		expectError bool
	}{
		{
			name:        "no store should fail",
			kind:        simplelisting.CategoryKind(),
			expectError: true,
		},
		{
			name:        "kind without collection should fail",
			kind:        simplelisting.Kind{Name: "Broken"},
			options:     []simplelisting.Option{simplelisting.WithStore(memory.New())},
			expectError: true,
		},
		{
			name:        "invalid page limits should fail",
			kind:        simplelisting.CategoryKind(),
			options:     []simplelisting.Option{simplelisting.WithStore(memory.New()), simplelisting.WithPageLimits(50, 10)},
			expectError: true,
		},
		{
			name:    "with store should succeed",
			kind:    simplelisting.CategoryKind(),
			options: []simplelisting.Option{simplelisting.WithStore(memory.New())},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := simplelisting.New(tt.kind, tt.options...)
			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, svc)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, svc)
			}
		})
	}
}

func TestCreateAndGet(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	categories := env.svc("categories")

	doc, err := categories.Create(ctx, alice, simplelisting.CreateRequest{Payload: map[string]any{
		"name":    "Villas",
		"slug":    " Villas ",
		"unknown": "dropped",
		"id":      "client-chosen",
	}})
	require.NoError(t, err)
	assert.NotEmpty(t, doc.ID)
	assert.NotEqual(t, "client-chosen", doc.ID)
	assert.Equal(t, "alice", doc.Owner)
	assert.Equal(t, "villas", doc.String("slug"))
	assert.NotContains(t, doc.Fields, "unknown")
	assert.False(t, doc.CreatedAt.IsZero())
	assert.Equal(t, doc.CreatedAt, doc.UpdatedAt)

	got, err := categories.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc, got)

	bySlug, err := categories.GetBySlug(ctx, "VILLAS")
	require.NoError(t, err)
	assert.Equal(t, doc.ID, bySlug.ID)

	_, err = categories.Get(ctx, "missing")
	assert.ErrorIs(t, err, simplelisting.ErrNotFound)
	_, err = categories.GetBySlug(ctx, "missing")
	assert.ErrorIs(t, err, simplelisting.ErrNotFound)

	assert.Equal(t, []string{"Category:" + doc.ID}, env.events.created)
}

func TestCreate_Errors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	categories := env.svc("categories")

	_, err := categories.Create(ctx, nil, simplelisting.CreateRequest{Payload: map[string]any{"name": "A", "slug": "a"}})
	assert.ErrorIs(t, err, simplelisting.ErrUnauthorized)

	_, err = categories.Create(ctx, alice, simplelisting.CreateRequest{Payload: map[string]any{"slug": "a"}})
	assert.ErrorIs(t, err, simplelisting.ErrValidation)
	assert.Equal(t, "name", simplelisting.FieldOf(err))

	_, err = categories.Create(ctx, alice, simplelisting.CreateRequest{Payload: map[string]any{"name": "A", "slug": "a"}})
	require.NoError(t, err)

	_, err = categories.Create(ctx, bob, simplelisting.CreateRequest{Payload: map[string]any{"name": "B", "slug": "A"}})
	assert.ErrorIs(t, err, simplelisting.ErrConflict)
	assert.Equal(t, "slug", simplelisting.FieldOf(err))

	_, err = categories.Create(ctx, bob, simplelisting.CreateRequest{Payload: map[string]any{"name": "A", "slug": "b"}})
	assert.ErrorIs(t, err, simplelisting.ErrConflict)
	assert.Equal(t, "name", simplelisting.FieldOf(err))

	_, err = env.svc("plans").Create(ctx, alice, simplelisting.CreateRequest{Payload: map[string]any{
		"name": "Gold", "slug": "gold", "price": -1,
	}})
	assert.ErrorIs(t, err, simplelisting.ErrValidation)
	assert.Equal(t, "price", simplelisting.FieldOf(err))

	_, err = env.svc("plans").Create(ctx, alice, simplelisting.CreateRequest{Payload: map[string]any{
		"name": "Gold", "slug": "gold", "price": 10, "billingCycle": "weekly",
	}})
	assert.ErrorIs(t, err, simplelisting.ErrValidation)
	assert.Equal(t, "billingCycle", simplelisting.FieldOf(err))

	_, err = env.svc("leads").GetBySlug(ctx, "anything")
	assert.ErrorIs(t, err, simplelisting.ErrValidation)
}

func TestCreate_Owner(t *testing.T) {
	env := newTestEnv(t, simplelisting.WithPrincipalDirectory(staticDirectory{"alice": true, "bob": true}))
	ctx := context.Background()
	leads := env.svc("leads")
	payload := func(owner string) map[string]any {
		return map[string]any{"name": "N", "email": "N@Example.com", "message": "hi", "owner": owner}
	}

	_, err := leads.Create(ctx, alice, simplelisting.CreateRequest{Payload: payload("bob")})
	assert.ErrorIs(t, err, simplelisting.ErrValidation)
	assert.Equal(t, "owner", simplelisting.FieldOf(err))

	doc, err := leads.Create(ctx, alice, simplelisting.CreateRequest{Payload: payload("alice")})
	require.NoError(t, err)
	assert.Equal(t, "alice", doc.Owner)
	assert.Equal(t, "n@example.com", doc.String("email"))
	assert.NotContains(t, doc.Fields, "owner")

	doc, err = leads.Create(ctx, admin, simplelisting.CreateRequest{Payload: payload("bob")})
	require.NoError(t, err)
	assert.Equal(t, "bob", doc.Owner)

	_, err = leads.Create(ctx, admin, simplelisting.CreateRequest{Payload: payload("ghost")})
	assert.ErrorIs(t, err, simplelisting.ErrValidation)
	assert.Equal(t, "owner", simplelisting.FieldOf(err))
}

func TestUpdate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	categories := env.svc("categories")

	doc, err := categories.Create(ctx, alice, simplelisting.CreateRequest{Payload: map[string]any{
		"name": "Villas", "slug": "villas", "description": "old",
	}})
	require.NoError(t, err)
	other, err := categories.Create(ctx, bob, simplelisting.CreateRequest{Payload: map[string]any{
		"name": "Flats", "slug": "flats",
	}})
	require.NoError(t, err)

	t.Run("partial update keeps other fields", func(t *testing.T) {
		updated, err := categories.Update(ctx, alice, simplelisting.UpdateRequest{ID: doc.ID, Payload: map[string]any{
			"description": "new",
			"createdAt":   "2000-01-01T00:00:00Z",
		}})
		require.NoError(t, err)
		assert.Equal(t, "new", updated.String("description"))
		assert.Equal(t, "Villas", updated.String("name"))
		assert.Equal(t, doc.CreatedAt, updated.CreatedAt)
		assert.True(t, updated.UpdatedAt.After(doc.UpdatedAt))
	})

	t.Run("same unique value on itself is not a conflict", func(t *testing.T) {
		_, err := categories.Update(ctx, alice, simplelisting.UpdateRequest{ID: doc.ID, Payload: map[string]any{"slug": "villas"}})
		assert.NoError(t, err)
	})

	t.Run("unique value of another document", func(t *testing.T) {
		_, err := categories.Update(ctx, alice, simplelisting.UpdateRequest{ID: doc.ID, Payload: map[string]any{"slug": "flats"}})
		assert.ErrorIs(t, err, simplelisting.ErrConflict)
	})

	t.Run("other principal is forbidden", func(t *testing.T) {
		_, err := categories.Update(ctx, bob, simplelisting.UpdateRequest{ID: doc.ID, Payload: map[string]any{"description": "x"}})
		assert.ErrorIs(t, err, simplelisting.ErrForbidden)
	})

	t.Run("admin may update any document", func(t *testing.T) {
		updated, err := categories.Update(ctx, admin, simplelisting.UpdateRequest{ID: other.ID, Payload: map[string]any{"description": "by admin"}})
		require.NoError(t, err)
		assert.Equal(t, "bob", updated.Owner)
	})

	t.Run("missing document", func(t *testing.T) {
		_, err := categories.Update(ctx, alice, simplelisting.UpdateRequest{ID: "missing", Payload: map[string]any{}})
		assert.ErrorIs(t, err, simplelisting.ErrNotFound)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		_, err := categories.Update(ctx, nil, simplelisting.UpdateRequest{ID: doc.ID})
		assert.ErrorIs(t, err, simplelisting.ErrUnauthorized)
	})

	t.Run("required field cannot be blanked", func(t *testing.T) {
		_, err := categories.Update(ctx, alice, simplelisting.UpdateRequest{ID: doc.ID, Payload: map[string]any{"name": ""}})
		assert.ErrorIs(t, err, simplelisting.ErrValidation)
	})

	assert.Len(t, env.events.updated, 3)
}

func TestDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	leads := env.svc("leads")

	doc, err := leads.Create(ctx, alice, simplelisting.CreateRequest{Payload: map[string]any{
		"name": "N", "email": "n@example.com", "message": "hi",
	}})
	require.NoError(t, err)

	assert.ErrorIs(t, leads.Delete(ctx, bob, doc.ID), simplelisting.ErrForbidden)
	assert.ErrorIs(t, leads.Delete(ctx, nil, doc.ID), simplelisting.ErrUnauthorized)
	require.NoError(t, leads.Delete(ctx, alice, doc.ID))
	assert.ErrorIs(t, leads.Delete(ctx, alice, doc.ID), simplelisting.ErrNotFound)

	_, err = leads.Get(ctx, doc.ID)
	assert.ErrorIs(t, err, simplelisting.ErrNotFound)
	assert.Equal(t, []string{"Lead:" + doc.ID}, env.events.deleted)
}

func TestDelete_DocumentWithoutOwner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.store.Insert(ctx, "leads", &simplelisting.Document{
		ID: "orphan", Fields: map[string]any{"name": "N"},
	}))

	err := env.svc("leads").Delete(ctx, admin, "orphan")
	assert.ErrorIs(t, err, simplelisting.ErrInternal)
	assert.NotErrorIs(t, err, simplelisting.ErrForbidden)
	assert.Equal(t, simplelisting.ErrInternal, simplelisting.ErrorCategory(err))

	_, err = env.svc("leads").Get(ctx, "orphan")
	assert.NoError(t, err)
}

func TestList_Pagination(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	leads := env.svc("leads")

	var ids []string
	for i := 0; i < 25; i++ {
		doc, err := leads.Create(ctx, alice, simplelisting.CreateRequest{Payload: map[string]any{
			"name": fmt.Sprintf("Lead %02d", i), "email": "x@example.com", "message": "hi",
		}})
		require.NoError(t, err)
		ids = append(ids, doc.ID)
	}

	page, err := leads.List(ctx, simplelisting.ListRequest{Page: 2, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(25), page.Total)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 10, page.Limit)
	require.Len(t, page.Items, 10)
	assert.Equal(t, ids[10], page.Items[0].ID)
	assert.Equal(t, ids[19], page.Items[9].ID)

	last, err := leads.List(ctx, simplelisting.ListRequest{Page: 3, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, last.Items, 5)

	beyond, err := leads.List(ctx, simplelisting.ListRequest{Page: 9, Limit: 10})
	require.NoError(t, err)
	assert.NotNil(t, beyond.Items)
	assert.Empty(t, beyond.Items)
	assert.Equal(t, int64(25), beyond.Total)

	defaults, err := leads.List(ctx, simplelisting.ListRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, defaults.Page)
	assert.Equal(t, simplelisting.DefaultPageLimit, defaults.Limit)

	capped, err := leads.List(ctx, simplelisting.ListRequest{Limit: 1000})
	require.NoError(t, err)
	assert.Equal(t, simplelisting.MaxPageLimit, capped.Limit)
	assert.Len(t, capped.Items, 25)

	huge, err := leads.List(ctx, simplelisting.ListRequest{Page: math.MaxInt, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, math.MaxInt, huge.Page)
	assert.NotNil(t, huge.Items)
	assert.Empty(t, huge.Items)
	assert.Equal(t, int64(25), huge.Total)
}

func TestDelete_LeavesDanglingReferences(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	estate, err := env.svc("realEstates").Create(ctx, alice, simplelisting.CreateRequest{
		Payload: map[string]any{
			"title":        "Lake house",
			"propertyType": map[string]any{"name": "House", "slug": "house"},
			"category":     map[string]any{"name": "Villas", "slug": "villas"},
		},
		Upload: &simplelisting.Upload{FileName: "lake.jpg", Reader: strings.NewReader("jpg bytes")},
	})
	require.NoError(t, err)
	categoryID := estate.String("category")
	require.NotEmpty(t, categoryID)
	mediaIDs, ok := estate.Fields["media"].([]any)
	require.True(t, ok)
	require.Len(t, mediaIDs, 1)
	mediaID := mediaIDs[0].(string)

	require.NoError(t, env.svc("categories").Delete(ctx, alice, categoryID))
	require.NoError(t, env.svc("media").Delete(ctx, alice, mediaID))

	got, err := env.svc("realEstates").Get(ctx, estate.ID)
	require.NoError(t, err)
	assert.Equal(t, categoryID, got.String("category"))
	assert.Equal(t, []any{mediaID}, got.Fields["media"])

	_, err = env.svc("categories").Get(ctx, categoryID)
	assert.ErrorIs(t, err, simplelisting.ErrNotFound)
	_, err = env.svc("media").Get(ctx, mediaID)
	assert.ErrorIs(t, err, simplelisting.ErrNotFound)
}

func TestList_Filters(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	estates := env.svc("realEstates")

	create := func(title string, price float64, status string) {
		_, err := estates.Create(ctx, alice, simplelisting.CreateRequest{Payload: map[string]any{
			"title":        title,
			"price":        price,
			"status":       status,
			"propertyType": map[string]any{"name": "House", "slug": "house"},
			"category":     map[string]any{"name": "Villas", "slug": "villas"},
		}})
		require.NoError(t, err)
	}
	create("Sea view villa", 250000, "sale")
	create("Mountain cabin", 90000, "rent")
	create("City loft", 400000, "sale")

	tests := []struct {
		name    string
		filters map[string]string
		want    int64
	}{
		{"no filters", nil, 3},
		{"price range", map[string]string{"minPrice": "100000", "maxPrice": "300000"}, 1},
		{"keyword", map[string]string{"keyword": "VILLA"}, 1},
		{"membership", map[string]string{"status": "sale,rent"}, 3},
		{"substring", map[string]string{"status": "sal"}, 2},
		{"category slug", map[string]string{"category": "villas"}, 3},
		{"unknown category", map[string]string{"category": "castles"}, 0},
		{"property type and price", map[string]string{"propertyType": "house", "maxPrice": "100000"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := estates.List(ctx, simplelisting.ListRequest{Filters: tt.filters})
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Total)
			assert.Len(t, res.Items, int(tt.want))
		})
	}
}

func TestCreateMany_PartialFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	postTypes := env.svc("post-types")

	res, err := postTypes.CreateMany(ctx, alice, []simplelisting.CreateRequest{
		{Payload: map[string]any{"name": "News", "slug": "news"}},
		{Payload: map[string]any{"slug": "nameless"}},
		{Payload: map[string]any{"name": "Guides", "slug": "guides"}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, simplelisting.ErrValidation)
	assert.Len(t, multierr.Errors(err), 1)

	require.NotNil(t, res)
	assert.Len(t, res.Items, 2)
	require.Len(t, res.Results, 3)
	assert.True(t, res.Results[0].OK)
	assert.False(t, res.Results[1].OK)
	assert.Equal(t, 1, res.Results[1].Index)
	assert.NotEmpty(t, res.Results[1].Error)
	assert.True(t, res.Results[2].OK)

	// Items before and after the failure stay committed.
	list, err := postTypes.List(ctx, simplelisting.ListRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), list.Total)

	_, err = postTypes.CreateMany(ctx, alice, nil)
	assert.ErrorIs(t, err, simplelisting.ErrValidation)
	_, err = postTypes.CreateMany(ctx, nil, []simplelisting.CreateRequest{{}})
	assert.ErrorIs(t, err, simplelisting.ErrUnauthorized)
}

func TestUpdateMany(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	postTypes := env.svc("post-types")

	mine, err := postTypes.Create(ctx, alice, simplelisting.CreateRequest{Payload: map[string]any{"name": "News"}})
	require.NoError(t, err)
	theirs, err := postTypes.Create(ctx, bob, simplelisting.CreateRequest{Payload: map[string]any{"name": "Guides"}})
	require.NoError(t, err)

	res, err := postTypes.UpdateMany(ctx, alice, []simplelisting.UpdateRequest{
		{ID: mine.ID, Payload: map[string]any{"description": "a"}},
		{ID: theirs.ID, Payload: map[string]any{"description": "b"}},
		{Payload: map[string]any{"description": "c"}},
	})
	assert.ErrorIs(t, err, simplelisting.ErrForbidden)
	assert.ErrorIs(t, err, simplelisting.ErrValidation)
	assert.Equal(t, simplelisting.ErrForbidden, simplelisting.ErrorCategory(multierr.Errors(err)[0]))
	require.Len(t, res.Results, 3)
	assert.True(t, res.Results[0].OK)
	assert.Equal(t, theirs.ID, res.Results[1].ID)
	assert.False(t, res.Results[2].OK)

	got, err := postTypes.Get(ctx, mine.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", got.String("description"))
}

func TestDeleteMany(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	postTypes := env.svc("post-types")

	a, err := postTypes.Create(ctx, alice, simplelisting.CreateRequest{Payload: map[string]any{"name": "A"}})
	require.NoError(t, err)
	b, err := postTypes.Create(ctx, alice, simplelisting.CreateRequest{Payload: map[string]any{"name": "B"}})
	require.NoError(t, err)

	_, err = postTypes.DeleteMany(ctx, alice, []string{})
	assert.ErrorIs(t, err, simplelisting.ErrValidation)

	res, err := postTypes.DeleteMany(ctx, alice, []string{a.ID, "missing", b.ID})
	assert.ErrorIs(t, err, simplelisting.ErrNotFound)
	assert.Equal(t, 2, res.Deleted)
	assert.False(t, res.Results[1].OK)

	list, err := postTypes.List(ctx, simplelisting.ListRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), list.Total)
}

// barrierStore holds every FindOne until n callers have arrived, so that
// concurrent creates all pass their uniqueness check before any insert.
type barrierStore struct {
	*memory.Store
	arrived sync.WaitGroup
}

func (b *barrierStore) FindOne(ctx context.Context, collection string, q simplelisting.Query) (*simplelisting.Document, error) {
	b.arrived.Done()
	b.arrived.Wait()
	return b.Store.FindOne(ctx, collection, q)
}

func TestCreate_ConcurrentDuplicatesWithoutStoreIndex(t *testing.T) {
	store := &barrierStore{Store: memory.New()}
	store.arrived.Add(2)
	postTypes, err := simplelisting.New(simplelisting.PostTypeKind(), simplelisting.WithStore(store))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = postTypes.Create(context.Background(), alice, simplelisting.CreateRequest{
				Payload: map[string]any{"name": fmt.Sprintf("News %d", i), "slug": "news"},
			})
		}(i)
	}
	wg.Wait()

	// The uniqueness check is not atomic with the insert: both succeed.
	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
	n, err := store.Count(context.Background(), "post-types", simplelisting.Where(simplelisting.Eq("slug", "news")))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestCreate_StoreIndexCatchesRace(t *testing.T) {
	store := &barrierStore{Store: memory.New(memory.WithUniqueIndex("post-types", "slug"))}
	store.arrived.Add(2)
	postTypes, err := simplelisting.New(simplelisting.PostTypeKind(), simplelisting.WithStore(store))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = postTypes.Create(context.Background(), alice, simplelisting.CreateRequest{
				Payload: map[string]any{"name": fmt.Sprintf("News %d", i), "slug": "news"},
			})
		}(i)
	}
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, simplelisting.ErrConflict)
			failed++
		}
	}
	assert.Equal(t, 1, failed)
}

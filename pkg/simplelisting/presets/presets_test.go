package presets

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-listing/pkg/simplelisting"
)

func TestNewTesting(t *testing.T) {
	stack := NewTesting(t)

	for _, kind := range simplelisting.DefaultCatalog().Kinds() {
		assert.NotNil(t, stack.Service(t, kind.Collection))
	}

	ctx := context.Background()
	leads := stack.Service(t, "leads")
	created, err := leads.Create(ctx, &simplelisting.Principal{ID: "u1"}, simplelisting.CreateRequest{
		Payload: map[string]any{"name": "Ana", "email": "ANA@example.com", "message": "hello"},
	})
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", created.String("email"))
}

func TestNewTestingIsolated(t *testing.T) {
	a := NewTesting(t)
	b := NewTesting(t)
	ctx := context.Background()
	principal := &simplelisting.Principal{ID: "u1"}

	_, err := a.Service(t, "categories").Create(ctx, principal, simplelisting.CreateRequest{
		Payload: map[string]any{"name": "Villas", "slug": "villas"},
	})
	require.NoError(t, err)

	list, err := b.Service(t, "categories").List(ctx, simplelisting.ListRequest{})
	require.NoError(t, err)
	assert.Zero(t, list.Total)
}

func TestNewTestingWithFixtures(t *testing.T) {
	stack := NewTesting(t, WithTestFixtures())
	ctx := context.Background()

	doc, err := stack.Service(t, "categories").GetBySlug(ctx, "houses")
	require.NoError(t, err)
	assert.Equal(t, FixtureOwner, doc.Owner)

	list, err := stack.Service(t, "property-types").List(ctx, simplelisting.ListRequest{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, list.Total)
}

func TestNewDevelopment(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "dev-data")

	rt, cleanup, err := NewDevelopment(WithDevStorage(dir), WithDevPort("9999"))
	require.NoError(t, err)

	_, err = rt.Media.Resolve(context.Background(), &simplelisting.Principal{ID: "u1"}, simplelisting.Upload{
		FileName: "plan.pdf",
		Reader:   strings.NewReader("%PDF-1.4"),
	})
	require.NoError(t, err)

	_, err = os.Stat(dir)
	require.NoError(t, err)

	cleanup()
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestNewProductionRejectsMemory(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DATABASE_TYPE", "memory")

	_, err := NewProduction(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "memory not allowed")
}

func TestNewProductionRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := NewProduction(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_secret")
}

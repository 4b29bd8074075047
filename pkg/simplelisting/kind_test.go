package simplelisting

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKind_Normalize(t *testing.T) {
	plan := PlanKind()

	fields, err := plan.Normalize(map[string]any{
		"name":         "Gold",
		"slug":         " GOLD ",
		"price":        "19.5",
		"features":     []any{"photos", 3.0},
		"billingCycle": "monthly",
		"owner":        "mallory",
		"extra":        true,
	}, false)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"name":         "Gold",
		"slug":         "gold",
		"price":        19.5,
		"features":     []any{"photos", 3.0},
		"billingCycle": "monthly",
	}, fields)

	tests := []struct {
		name    string
		payload map[string]any
		partial bool
		field   string
	}{
		{"missing required", map[string]any{"name": "Gold", "slug": "gold"}, false, "price"},
		{"blank required", map[string]any{"name": " ", "slug": "gold", "price": 1}, false, "name"},
		{"below minimum", map[string]any{"name": "Gold", "slug": "gold", "price": -0.5}, false, "price"},
		{"not a number", map[string]any{"name": "Gold", "slug": "gold", "price": "free"}, false, "price"},
		{"not finite", map[string]any{"name": "Gold", "slug": "gold", "price": math.Inf(1)}, false, "price"},
		{"enum", map[string]any{"billingCycle": "daily"}, true, "billingCycle"},
		{"scalar list value is wrapped", map[string]any{"features": "photos"}, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := plan.Normalize(tt.payload, tt.partial)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrValidation)
			assert.Equal(t, tt.field, FieldOf(err))
		})
	}
}

func TestKind_NormalizePartial(t *testing.T) {
	fields, err := RealEstateKind().Normalize(map[string]any{
		"price":           "",
		"characteristics": []string{"a", "b"},
		"status":          "sale",
	}, true)
	require.NoError(t, err)
	assert.Nil(t, fields["price"])
	assert.Equal(t, []any{"a", "b"}, fields["characteristics"])
	assert.Equal(t, "sale", fields["status"])
	assert.NotContains(t, fields, "title")
}

func TestCatalog_Lookup(t *testing.T) {
	c := DefaultCatalog()

	k, ok := c.Lookup(KindPropertyType)
	require.True(t, ok)
	assert.Equal(t, "property-types", k.Collection)

	k, ok = c.Lookup("realEstates")
	require.True(t, ok)
	assert.Equal(t, KindRealEstate, k.Name)

	_, ok = c.Lookup("Blog")
	assert.False(t, ok)
	assert.Len(t, c.Kinds(), 8)

	for _, k := range c.Kinds() {
		for _, lf := range k.LinkedFields {
			_, ok := c.Lookup(lf.Target)
			assert.True(t, ok, "%s.%s links to unknown kind %s", k.Name, lf.Field, lf.Target)
			_, ok = k.Field(lf.Field)
			assert.True(t, ok, "%s links undeclared field %s", k.Name, lf.Field)
		}
	}
}

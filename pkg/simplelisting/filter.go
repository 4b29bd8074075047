package simplelisting

import (
	"context"
	"errors"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Reserved query parameters.
const (
	ParamPage    = "page"
	ParamLimit   = "limit"
	ParamKeyword = "keyword"
)

type rangeBound struct {
	field string
	op    Op
}

var rangeParams = map[string]rangeBound{
	"minPrice":     {"price", OpGte},
	"maxPrice":     {"price", OpLte},
	"minSqft":      {"sqft", OpGte},
	"maxSqft":      {"sqft", OpLte},
	"minArea":      {"sqft", OpGte},
	"maxArea":      {"sqft", OpLte},
	"minYearBuilt": {"yearBuilt", OpGte},
	"maxYearBuilt": {"yearBuilt", OpLte},
	"minBedrooms":  {"bedrooms", OpGte},
	"maxBedrooms":  {"bedrooms", OpLte},
	"minBathrooms": {"bathrooms", OpGte},
	"maxBathrooms": {"bathrooms", OpLte},
	"minGarage":    {"garage", OpGte},
	"maxGarage":    {"garage", OpLte},
}

var keywordFields = []string{"title", "content", "name", "fileName"}

// resolvedParams are filtered by the id of the document whose slug is given.
var resolvedParams = map[string]string{
	"category":     KindCategory,
	"propertyType": KindPropertyType,
}

// FilterCompiler turns list query parameters into a Query.
type FilterCompiler struct {
	store   Store
	catalog *Catalog
}

// NewFilterCompiler creates a compiler resolving slugs through store.
func NewFilterCompiler(store Store, catalog *Catalog) *FilterCompiler {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &FilterCompiler{store: store, catalog: catalog}
}

// Compile builds the conjunction of one clause per parameter. Parameters are
// processed in key order so equal inputs compile to equal queries.
func (c *FilterCompiler) Compile(ctx context.Context, params map[string]string) (Query, error) {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if k == ParamPage || k == ParamLimit || strings.TrimSpace(v) == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var q Query
	for _, key := range keys {
		value := strings.TrimSpace(params[key])

		if bound, ok := rangeParams[key]; ok {
			if n, ok := parseNumber(value); ok {
				q = q.And(Clause{Field: bound.field, Op: bound.op, Value: n})
			} else {
				q = q.And(Contains(bound.field, value))
			}
			continue
		}

		if key == ParamKeyword {
			matches := make([]Clause, len(keywordFields))
			for i, f := range keywordFields {
				matches[i] = Contains(f, value)
			}
			q = q.And(AnyOf(matches...))
			continue
		}

		if target, ok := resolvedParams[key]; ok {
			clause, err := c.resolve(ctx, key, target, value)
			if err != nil {
				return Query{}, err
			}
			q = q.And(clause)
			continue
		}

		q = q.And(valueClause(key, value))
	}
	return q, nil
}

func valueClause(field, value string) Clause {
	if strings.Contains(value, ",") {
		var values []any
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if n, ok := parseNumber(part); ok {
				values = append(values, n)
			} else {
				values = append(values, part)
			}
		}
		return In(field, values...)
	}
	if n, ok := parseNumber(value); ok {
		return Eq(field, n)
	}
	return Contains(field, value)
}

// resolve maps slugs (or ids) of the target kind to ids. Values that match no
// document drop out; when none resolve the clause matches nothing.
func (c *FilterCompiler) resolve(ctx context.Context, field, target, value string) (Clause, error) {
	kind, ok := c.catalog.Lookup(target)
	if !ok {
		return valueClause(field, value), nil
	}
	var ids []any
	for _, ref := range strings.Split(value, ",") {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			continue
		}
		doc, err := c.store.FindOne(ctx, kind.Collection, Where(AnyOf(
			Eq(kind.SlugField, strings.ToLower(ref)),
			Eq(FieldID, ref),
		)))
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return Clause{}, internalError(kind.Name, "filter", "", err)
		}
		ids = append(ids, doc.ID)
	}
	switch len(ids) {
	case 0:
		return MatchNone(), nil
	case 1:
		return Eq(field, ids[0]), nil
	}
	return In(field, ids...), nil
}

func parseNumber(s string) (float64, bool) {
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

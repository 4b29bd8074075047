package simplelisting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// LinkResolver replaces embedded sub-objects in linked fields with the ids of
// existing or newly created documents.
//
// Lookup and insert are separate store calls. Two requests embedding the same
// new object concurrently can both miss the lookup and create duplicates.
type LinkResolver struct {
	store   Store
	catalog *Catalog
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
}

// Resolve rewrites payload in place. Single-valued fields become an id string,
// list fields a list of ids in input order with "" for empty elements.
func (r *LinkResolver) Resolve(ctx context.Context, principal *Principal, kind Kind, payload map[string]any) error {
	for _, lf := range kind.LinkedFields {
		raw, ok := payload[lf.Field]
		if !ok {
			continue
		}
		target, ok := r.catalog.Lookup(lf.Target)
		if !ok {
			return internalError(kind.Name, "link", "", fmt.Errorf("unknown link target %q", lf.Target))
		}

		if items, isList := raw.([]any); isList {
			ids := make([]any, len(items))
			for i, item := range items {
				id, err := r.resolveOne(ctx, principal, kind, target, fmt.Sprintf("%s[%d]", lf.Field, i), item)
				if err != nil {
					return err
				}
				ids[i] = id
			}
			payload[lf.Field] = ids
			continue
		}

		id, err := r.resolveOne(ctx, principal, kind, target, lf.Field, raw)
		if err != nil {
			return err
		}
		payload[lf.Field] = id
	}
	return nil
}

func (r *LinkResolver) resolveOne(ctx context.Context, principal *Principal, parent, target Kind, field string, v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case bool:
		if !x {
			return "", nil
		}
	case string:
		return strings.TrimSpace(x), nil
	case map[string]any:
		return r.resolveEmbedded(ctx, principal, parent, target, field, x)
	}
	return "", validationError(parent.Name, "link", field, fmt.Sprintf("%s must be an id or an object", field))
}

func (r *LinkResolver) resolveEmbedded(ctx context.Context, principal *Principal, parent, target Kind, field string, obj map[string]any) (string, error) {
	if len(obj) == 0 {
		return "", nil
	}
	for _, key := range []string{FieldID, "_id"} {
		if id, ok := obj[key].(string); ok && id != "" {
			return id, nil
		}
	}

	if target.NaturalKey != "" {
		if key, ok := obj[target.NaturalKey].(string); ok && key != "" {
			value := key
			if f, ok := target.Field(target.NaturalKey); ok && f.Lowercase {
				value = strings.ToLower(strings.TrimSpace(key))
			}
			existing, err := r.store.FindOne(ctx, target.Collection, Where(Eq(target.NaturalKey, value)))
			if err == nil {
				return existing.ID, nil
			}
			if !errors.Is(err, ErrNotFound) {
				return "", internalError(target.Name, "link", "", err)
			}
		}
	}

	if principal == nil || principal.ID == "" {
		return "", unauthorizedError(parent.Name, "link")
	}
	fields, err := target.Normalize(obj, false)
	if err != nil {
		var re *ResourceError
		if errors.As(err, &re) {
			re.Field = field + "." + re.Field
		}
		return "", err
	}
	now := r.now()
	doc := &Document{ID: r.newID(), Owner: principal.ID, CreatedAt: now, UpdatedAt: now, Fields: fields}
	if err := r.store.Insert(ctx, target.Collection, doc); err != nil {
		if errors.Is(err, ErrConflict) {
			return "", conflictError(target.Name, "link", field, fmt.Sprintf("%s already exists", target.Name))
		}
		return "", internalError(target.Name, "link", doc.ID, err)
	}
	r.logger.Debug("linked object created", "kind", target.Name, "id", doc.ID, "parent", parent.Name)
	return doc.ID, nil
}

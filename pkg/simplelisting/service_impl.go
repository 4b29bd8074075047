package simplelisting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"go.uber.org/multierr"
)

type service struct {
	kind      Kind
	store     Store
	catalog   *Catalog
	filters   *FilterCompiler
	links     *LinkResolver
	media     *MediaResolver
	guard     *Guard
	events    EventSink
	directory PrincipalDirectory
	logger    *slog.Logger

	adminRoles   []string
	createRoles  []string
	defaultLimit int
	maxLimit     int

	now   func() time.Time
	newID func() string
}

func (s *service) Kind() Kind {
	return s.kind
}

func (s *service) Create(ctx context.Context, principal *Principal, req CreateRequest) (*Document, error) {
	const op = "create"
	if principal == nil || principal.ID == "" {
		return nil, unauthorizedError(s.kind.Name, op)
	}
	payload := cloneMap(req.Payload)

	// An upload to the media kind is the media document itself.
	if s.kind.Name == KindMedia && req.Upload != nil {
		if s.media == nil {
			return nil, validationError(s.kind.Name, op, "file", "uploads are not enabled")
		}
		up := *req.Upload
		if up.AltText == "" {
			up.AltText, _ = payload["altText"].(string)
		}
		return s.media.Resolve(ctx, principal, up)
	}

	if err := s.attachMedia(ctx, principal, op, payload, req.Upload, nil); err != nil {
		return nil, err
	}
	if err := s.links.Resolve(ctx, principal, s.kind, payload); err != nil {
		return nil, err
	}
	owner, err := s.resolveOwner(ctx, principal, op, payload, "")
	if err != nil {
		return nil, err
	}
	fields, err := s.kind.Normalize(payload, false)
	if err != nil {
		return nil, err
	}
	if err := s.checkUnique(ctx, op, fields, ""); err != nil {
		return nil, err
	}

	now := s.now()
	doc := &Document{
		ID:        s.newID(),
		Owner:     owner,
		CreatedAt: now,
		UpdatedAt: now,
		Fields:    fields,
	}
	if err := s.store.Insert(ctx, s.kind.Collection, doc); err != nil {
		return nil, s.storeError(op, doc.ID, err)
	}

	if err := s.events.ResourceCreated(ctx, s.kind.Name, doc); err != nil {
		s.logger.Warn("event sink failed", "kind", s.kind.Name, "id", doc.ID, "err", err)
	}
	return doc, nil
}

func (s *service) CreateMany(ctx context.Context, principal *Principal, reqs []CreateRequest) (*BatchResult, error) {
	if principal == nil || principal.ID == "" {
		return nil, unauthorizedError(s.kind.Name, "createMany")
	}
	if len(reqs) == 0 {
		return nil, validationError(s.kind.Name, "createMany", "", "at least one item is required")
	}
	result := &BatchResult{Items: []*Document{}}
	var errs error
	for i, req := range reqs {
		doc, err := s.Create(ctx, principal, req)
		if err != nil {
			errs = multierr.Append(errs, err)
			result.Results = append(result.Results, failedItem(i, "", err))
			continue
		}
		result.Items = append(result.Items, doc)
		result.Results = append(result.Results, BatchItemResult{Index: i, ID: doc.ID, OK: true})
	}
	return result, errs
}

func (s *service) Get(ctx context.Context, id string) (*Document, error) {
	return s.load(ctx, "get", id)
}

func (s *service) GetBySlug(ctx context.Context, slug string) (*Document, error) {
	const op = "getBySlug"
	if s.kind.SlugField == "" {
		return nil, validationError(s.kind.Name, op, "slug", fmt.Sprintf("%s has no slug", s.kind.Name))
	}
	slug = strings.ToLower(strings.TrimSpace(slug))
	doc, err := s.store.FindOne(ctx, s.kind.Collection, Where(Eq(s.kind.SlugField, slug)))
	if err != nil {
		return nil, s.storeError(op, slug, err)
	}
	return doc, nil
}

func (s *service) List(ctx context.Context, req ListRequest) (*ListResult, error) {
	const op = "list"
	page, limit := req.Page, req.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = s.defaultLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}

	q, err := s.filters.Compile(ctx, req.Filters)
	if err != nil {
		return nil, err
	}
	var items []*Document
	// Pages whose offset does not fit in an int lie past every result.
	if page-1 <= math.MaxInt/limit {
		items, err = s.store.Find(ctx, s.kind.Collection, q, FindOptions{Skip: (page - 1) * limit, Limit: limit})
		if err != nil {
			return nil, s.storeError(op, "", err)
		}
	}
	total, err := s.store.Count(ctx, s.kind.Collection, q)
	if err != nil {
		return nil, s.storeError(op, "", err)
	}
	if items == nil {
		items = []*Document{}
	}
	return &ListResult{Items: items, Total: total, Page: page, Limit: limit}, nil
}

func (s *service) Update(ctx context.Context, principal *Principal, req UpdateRequest) (*Document, error) {
	const op = "update"
	if principal == nil || principal.ID == "" {
		return nil, unauthorizedError(s.kind.Name, op)
	}
	existing, err := s.load(ctx, op, req.ID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(principal, op, existing); err != nil {
		return nil, err
	}

	payload := cloneMap(req.Payload)
	for _, k := range []string{FieldID, "_id", FieldCreatedAt, FieldUpdatedAt} {
		delete(payload, k)
	}
	if s.kind.MediaField != "" {
		base, _ := existing.Fields[s.kind.MediaField].([]any)
		if err := s.attachMedia(ctx, principal, op, payload, req.Upload, base); err != nil {
			return nil, err
		}
	} else if req.Upload != nil {
		return nil, validationError(s.kind.Name, op, "file", fmt.Sprintf("%s does not accept uploads", s.kind.Name))
	}
	if err := s.links.Resolve(ctx, principal, s.kind, payload); err != nil {
		return nil, err
	}
	owner, err := s.resolveOwner(ctx, principal, op, payload, existing.Owner)
	if err != nil {
		return nil, err
	}
	fields, err := s.kind.Normalize(payload, true)
	if err != nil {
		return nil, err
	}
	if err := s.checkUnique(ctx, op, fields, existing.ID); err != nil {
		return nil, err
	}

	updated := existing.Clone()
	for k, v := range fields {
		updated.Fields[k] = v
	}
	updated.Owner = owner
	updated.UpdatedAt = s.now()
	if err := s.store.Update(ctx, s.kind.Collection, updated); err != nil {
		return nil, s.storeError(op, updated.ID, err)
	}

	if err := s.events.ResourceUpdated(ctx, s.kind.Name, updated); err != nil {
		s.logger.Warn("event sink failed", "kind", s.kind.Name, "id", updated.ID, "err", err)
	}
	return updated, nil
}

func (s *service) UpdateMany(ctx context.Context, principal *Principal, reqs []UpdateRequest) (*BatchResult, error) {
	const op = "updateMany"
	if principal == nil || principal.ID == "" {
		return nil, unauthorizedError(s.kind.Name, op)
	}
	if len(reqs) == 0 {
		return nil, validationError(s.kind.Name, op, "", "at least one item is required")
	}
	result := &BatchResult{Items: []*Document{}}
	var errs error
	for i, req := range reqs {
		if req.ID == "" {
			err := validationError(s.kind.Name, op, FieldID, "id is required")
			errs = multierr.Append(errs, err)
			result.Results = append(result.Results, failedItem(i, "", err))
			continue
		}
		doc, err := s.Update(ctx, principal, req)
		if err != nil {
			errs = multierr.Append(errs, err)
			result.Results = append(result.Results, failedItem(i, req.ID, err))
			continue
		}
		result.Items = append(result.Items, doc)
		result.Results = append(result.Results, BatchItemResult{Index: i, ID: doc.ID, OK: true})
	}
	return result, errs
}

func (s *service) Delete(ctx context.Context, principal *Principal, id string) error {
	const op = "delete"
	if principal == nil || principal.ID == "" {
		return unauthorizedError(s.kind.Name, op)
	}
	existing, err := s.load(ctx, op, id)
	if err != nil {
		return err
	}
	if err := s.authorize(principal, op, existing); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, s.kind.Collection, id); err != nil {
		return s.storeError(op, id, err)
	}
	if err := s.events.ResourceDeleted(ctx, s.kind.Name, id); err != nil {
		s.logger.Warn("event sink failed", "kind", s.kind.Name, "id", id, "err", err)
	}
	return nil
}

func (s *service) DeleteMany(ctx context.Context, principal *Principal, ids []string) (*BatchResult, error) {
	const op = "deleteMany"
	if principal == nil || principal.ID == "" {
		return nil, unauthorizedError(s.kind.Name, op)
	}
	if len(ids) == 0 {
		return nil, validationError(s.kind.Name, op, "ids", "ids must be a non-empty list")
	}
	result := &BatchResult{Items: []*Document{}}
	var errs error
	for i, id := range ids {
		if err := s.Delete(ctx, principal, id); err != nil {
			errs = multierr.Append(errs, err)
			result.Results = append(result.Results, failedItem(i, id, err))
			continue
		}
		result.Deleted++
		result.Results = append(result.Results, BatchItemResult{Index: i, ID: id, OK: true})
	}
	return result, errs
}

func (s *service) load(ctx context.Context, op, id string) (*Document, error) {
	if strings.TrimSpace(id) == "" {
		return nil, notFoundError(s.kind.Name, op, id)
	}
	doc, err := s.store.Get(ctx, s.kind.Collection, id)
	if err != nil {
		return nil, s.storeError(op, id, err)
	}
	return doc, nil
}

func (s *service) authorize(principal *Principal, op string, doc *Document) error {
	decision, err := s.guard.Authorize(principal, doc)
	switch {
	case err == nil:
		s.logger.Debug("mutation authorized", "kind", s.kind.Name, "id", doc.ID, "principal", principal.ID, "path", decision.Path)
		return nil
	case errors.Is(err, ErrUnauthorized):
		return unauthorizedError(s.kind.Name, op)
	case errors.Is(err, ErrForbidden):
		return forbiddenError(s.kind.Name, op, doc.ID)
	}
	s.logger.Error("authorization data defect", "kind", s.kind.Name, "id", doc.ID, "err", err)
	return internalError(s.kind.Name, op, doc.ID, err)
}

// attachMedia resolves an upload and merges the media id into payload. List
// media fields append to the payload's list, or to base when the payload
// carries none.
func (s *service) attachMedia(ctx context.Context, principal *Principal, op string, payload map[string]any, up *Upload, base []any) error {
	if up == nil {
		return nil
	}
	if s.kind.MediaField == "" {
		return validationError(s.kind.Name, op, "file", fmt.Sprintf("%s does not accept uploads", s.kind.Name))
	}
	if s.media == nil {
		return validationError(s.kind.Name, op, "file", "uploads are not enabled")
	}
	media, err := s.media.Resolve(ctx, principal, *up)
	if err != nil {
		return err
	}

	field, _ := s.kind.Field(s.kind.MediaField)
	if field.Type != FieldRefList {
		payload[s.kind.MediaField] = media.ID
		return nil
	}
	var list []any
	if current, ok := payload[s.kind.MediaField]; ok {
		list = append(list, asList(current)...)
	} else {
		list = append(list, base...)
	}
	payload[s.kind.MediaField] = append(list, media.ID)
	return nil
}

// resolveOwner removes owner from payload and returns the owner to store.
// Only holders of a create role may assign a document to someone else.
func (s *service) resolveOwner(ctx context.Context, principal *Principal, op string, payload map[string]any, current string) (string, error) {
	raw, present := payload[FieldOwner]
	delete(payload, FieldOwner)

	owner := current
	if owner == "" {
		owner = principal.ID
	}
	if present && raw != nil && raw != "" {
		requested, ok := raw.(string)
		if !ok {
			return "", validationError(s.kind.Name, op, FieldOwner, "owner must be a string")
		}
		if requested != principal.ID && requested != current && !principal.HasRole(s.createRoles...) {
			return "", validationError(s.kind.Name, op, FieldOwner, "owner must match the authenticated user")
		}
		owner = requested
	}

	if s.directory != nil && owner != current {
		exists, err := s.directory.PrincipalExists(ctx, owner)
		switch {
		case err != nil:
			s.logger.Warn("owner lookup failed", "kind", s.kind.Name, "owner", owner, "err", err)
		case !exists:
			return "", validationError(s.kind.Name, op, FieldOwner, "owner does not exist")
		}
	}
	return owner, nil
}

// checkUnique rejects values of unique fields already used by another
// document. The check is not atomic with the following write.
func (s *service) checkUnique(ctx context.Context, op string, fields map[string]any, excludeID string) error {
	for _, name := range s.kind.UniqueFields {
		v, ok := fields[name]
		if !ok || isEmpty(v) {
			continue
		}
		q := Where(Eq(name, v))
		if excludeID != "" {
			q = q.And(Ne(FieldID, excludeID))
		}
		_, err := s.store.FindOne(ctx, s.kind.Collection, q)
		if err == nil {
			return conflictError(s.kind.Name, op, name, fmt.Sprintf("%s with this %s already exists", s.kind.Name, name))
		}
		if !errors.Is(err, ErrNotFound) {
			return internalError(s.kind.Name, op, excludeID, err)
		}
	}
	return nil
}

func (s *service) storeError(op, id string, err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return notFoundError(s.kind.Name, op, id)
	case errors.Is(err, ErrConflict):
		return conflictError(s.kind.Name, op, "", fmt.Sprintf("%s already exists", s.kind.Name))
	}
	s.logger.Error("store operation failed", "kind", s.kind.Name, "op", op, "id", id, "err", err)
	return internalError(s.kind.Name, op, id, err)
}

func failedItem(index int, id string, err error) BatchItemResult {
	return BatchItemResult{Index: index, ID: id, Error: err.Error(), Err: err}
}

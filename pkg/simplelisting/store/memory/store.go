package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tendant/simple-listing/pkg/simplelisting"
)

// Store implements simplelisting.Store using in-memory maps
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]*entry
	unique      map[string][]string // collection -> unique fields
	seq         int64
}

type entry struct {
	doc *simplelisting.Document
	seq int64
}

// Option configures a Store
type Option func(*Store)

// WithUniqueIndex makes the store reject a second document with the same
// non-empty value of field in collection.
func WithUniqueIndex(collection, field string) Option {
	return func(s *Store) {
		s.unique[collection] = append(s.unique[collection], field)
	}
}

// New creates a new in-memory store
func New(opts ...Option) *Store {
	s := &Store{
		collections: make(map[string]map[string]*entry),
		unique:      make(map[string][]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Insert(ctx context.Context, collection string, doc *simplelisting.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.collection(collection)
	if _, exists := docs[doc.ID]; exists {
		return fmt.Errorf("%w: id %s", simplelisting.ErrConflict, doc.ID)
	}
	if err := s.checkUnique(collection, doc); err != nil {
		return err
	}
	s.seq++
	docs[doc.ID] = &entry{doc: doc.Clone(), seq: s.seq}
	return nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (*simplelisting.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.collections[collection][id]
	if !ok {
		return nil, simplelisting.ErrNotFound
	}
	return e.doc.Clone(), nil
}

func (s *Store) FindOne(ctx context.Context, collection string, q simplelisting.Query) (*simplelisting.Document, error) {
	docs, err := s.Find(ctx, collection, q, simplelisting.FindOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, simplelisting.ErrNotFound
	}
	return docs[0], nil
}

func (s *Store) Find(ctx context.Context, collection string, q simplelisting.Query, opts simplelisting.FindOptions) ([]*simplelisting.Document, error) {
	matches := s.matching(collection, q)
	if opts.Skip > 0 {
		if opts.Skip >= len(matches) {
			return []*simplelisting.Document{}, nil
		}
		matches = matches[opts.Skip:]
	}
	if opts.Limit > 0 && len(matches) > opts.Limit {
		matches = matches[:opts.Limit]
	}
	out := make([]*simplelisting.Document, len(matches))
	for i, doc := range matches {
		out[i] = doc.Clone()
	}
	return out, nil
}

func (s *Store) Count(ctx context.Context, collection string, q simplelisting.Query) (int64, error) {
	return int64(len(s.matching(collection, q))), nil
}

func (s *Store) Update(ctx context.Context, collection string, doc *simplelisting.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.collections[collection][doc.ID]
	if !ok {
		return simplelisting.ErrNotFound
	}
	if err := s.checkUnique(collection, doc); err != nil {
		return err
	}
	e.doc = doc.Clone()
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.collections[collection]
	if _, ok := docs[id]; !ok {
		return simplelisting.ErrNotFound
	}
	delete(docs, id)
	return nil
}

// matching returns the stored documents matching q in default order:
// creation time, then insertion order. Stored documents are replaced on
// update, never mutated, so the returned pointers stay valid after the lock
// is released.
func (s *Store) matching(collection string, q simplelisting.Query) []*simplelisting.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []entry
	for _, e := range s.collections[collection] {
		if Matches(e.doc, q) {
			hits = append(hits, *e)
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if !a.doc.CreatedAt.Equal(b.doc.CreatedAt) {
			return a.doc.CreatedAt.Before(b.doc.CreatedAt)
		}
		return a.seq < b.seq
	})
	out := make([]*simplelisting.Document, len(hits))
	for i, e := range hits {
		out[i] = e.doc
	}
	return out
}

func (s *Store) collection(name string) map[string]*entry {
	docs, ok := s.collections[name]
	if !ok {
		docs = make(map[string]*entry)
		s.collections[name] = docs
	}
	return docs
}

func (s *Store) checkUnique(collection string, doc *simplelisting.Document) error {
	for _, field := range s.unique[collection] {
		v, ok := doc.Fields[field]
		if !ok || v == nil || v == "" {
			continue
		}
		for id, e := range s.collections[collection] {
			if id == doc.ID {
				continue
			}
			if other, ok := e.doc.Fields[field]; ok && equal(other, v) {
				return fmt.Errorf("%w: duplicate %s", simplelisting.ErrConflict, field)
			}
		}
	}
	return nil
}

// Matches reports whether doc satisfies every clause of q.
func Matches(doc *simplelisting.Document, q simplelisting.Query) bool {
	for _, c := range q.Clauses {
		if !matchClause(doc, c) {
			return false
		}
	}
	return true
}

func matchClause(doc *simplelisting.Document, c simplelisting.Clause) bool {
	switch c.Op {
	case simplelisting.OpNone:
		return false
	case simplelisting.OpOr:
		for _, sub := range c.Or {
			if matchClause(doc, sub) {
				return true
			}
		}
		return false
	}

	v, ok := doc.Value(c.Field)
	switch c.Op {
	case simplelisting.OpEq:
		return ok && matchesAny(v, func(x any) bool { return equal(x, c.Value) })
	case simplelisting.OpNe:
		return !ok || !matchesAny(v, func(x any) bool { return equal(x, c.Value) })
	case simplelisting.OpIn:
		return ok && matchesAny(v, func(x any) bool {
			for _, want := range c.Values {
				if equal(x, want) {
					return true
				}
			}
			return false
		})
	case simplelisting.OpGte, simplelisting.OpLte:
		return ok && matchesAny(v, func(x any) bool { return compare(x, c.Value, c.Op) })
	case simplelisting.OpContains:
		needle, _ := c.Value.(string)
		needle = strings.ToLower(needle)
		return ok && matchesAny(v, func(x any) bool {
			s, isString := x.(string)
			return isString && strings.Contains(strings.ToLower(s), needle)
		})
	}
	return false
}

// matchesAny applies pred to v, or to each element when v is a list.
func matchesAny(v any, pred func(any) bool) bool {
	if list, ok := v.([]any); ok {
		for _, x := range list {
			if pred(x) {
				return true
			}
		}
		return false
	}
	return pred(v)
}

func equal(a, b any) bool {
	if an, ok := number(a); ok {
		bn, ok := number(b)
		return ok && an == bn
	}
	if at, ok := a.(time.Time); ok {
		bt, ok := b.(time.Time)
		return ok && at.Equal(bt)
	}
	switch a.(type) {
	case string, bool:
		return a == b
	}
	return false
}

func compare(a, b any, op simplelisting.Op) bool {
	an, ok := number(a)
	if !ok {
		return false
	}
	bn, ok := number(b)
	if !ok {
		return false
	}
	if op == simplelisting.OpGte {
		return an >= bn
	}
	return an <= bn
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	}
	return 0, false
}

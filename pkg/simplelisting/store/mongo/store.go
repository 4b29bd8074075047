package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tendant/simple-listing/pkg/simplelisting"
)

// Store implements simplelisting.Store with one MongoDB collection per kind
type Store struct {
	db *mongo.Database
}

// New creates a store in db
func New(db *mongo.Database) *Store {
	return &Store{db: db}
}

var defaultSort = bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}

// EnsureIndexes creates the unique url index on media and unique slug indexes
// on the given collections.
func (s *Store) EnsureIndexes(ctx context.Context, slugCollections ...string) error {
	_, err := s.db.Collection("media").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "url", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create media url index: %w", err)
	}
	for _, name := range slugCollections {
		_, err := s.db.Collection(name).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys: bson.D{{Key: "slug", Value: 1}},
			Options: options.Index().SetUnique(true).SetPartialFilterExpression(bson.M{
				"slug": bson.M{"$type": "string", "$gt": ""},
			}),
		})
		if err != nil {
			return fmt.Errorf("create %s slug index: %w", name, err)
		}
	}
	return nil
}

func (s *Store) Insert(ctx context.Context, collection string, doc *simplelisting.Document) error {
	_, err := s.db.Collection(collection).InsertOne(ctx, encode(doc))
	return mapError(err)
}

func (s *Store) Get(ctx context.Context, collection, id string) (*simplelisting.Document, error) {
	var raw bson.M
	if err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&raw); err != nil {
		return nil, mapError(err)
	}
	return decode(raw), nil
}

func (s *Store) FindOne(ctx context.Context, collection string, q simplelisting.Query) (*simplelisting.Document, error) {
	var raw bson.M
	opts := options.FindOne().SetSort(defaultSort)
	if err := s.db.Collection(collection).FindOne(ctx, Filter(q), opts).Decode(&raw); err != nil {
		return nil, mapError(err)
	}
	return decode(raw), nil
}

func (s *Store) Find(ctx context.Context, collection string, q simplelisting.Query, opts simplelisting.FindOptions) ([]*simplelisting.Document, error) {
	findOpts := options.Find().SetSort(defaultSort)
	if opts.Skip > 0 {
		findOpts.SetSkip(int64(opts.Skip))
	}
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	cursor, err := s.db.Collection(collection).Find(ctx, Filter(q), findOpts)
	if err != nil {
		return nil, mapError(err)
	}
	var raws []bson.M
	if err := cursor.All(ctx, &raws); err != nil {
		return nil, mapError(err)
	}
	docs := make([]*simplelisting.Document, len(raws))
	for i, raw := range raws {
		docs[i] = decode(raw)
	}
	return docs, nil
}

func (s *Store) Count(ctx context.Context, collection string, q simplelisting.Query) (int64, error) {
	n, err := s.db.Collection(collection).CountDocuments(ctx, Filter(q))
	if err != nil {
		return 0, mapError(err)
	}
	return n, nil
}

func (s *Store) Update(ctx context.Context, collection string, doc *simplelisting.Document) error {
	res, err := s.db.Collection(collection).ReplaceOne(ctx, bson.M{"_id": doc.ID}, encode(doc))
	if err != nil {
		return mapError(err)
	}
	if res.MatchedCount == 0 {
		return simplelisting.ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	res, err := s.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return mapError(err)
	}
	if res.DeletedCount == 0 {
		return simplelisting.ErrNotFound
	}
	return nil
}

func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return simplelisting.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %v", simplelisting.ErrConflict, err)
	}
	return err
}

func encode(doc *simplelisting.Document) bson.M {
	out := bson.M{}
	for k, v := range doc.Fields {
		out[k] = v
	}
	out["_id"] = doc.ID
	out[simplelisting.FieldOwner] = doc.Owner
	out[simplelisting.FieldCreatedAt] = doc.CreatedAt
	out[simplelisting.FieldUpdatedAt] = doc.UpdatedAt
	return out
}

func decode(raw bson.M) *simplelisting.Document {
	doc := &simplelisting.Document{Fields: map[string]any{}}
	for k, v := range raw {
		switch k {
		case "_id":
			doc.ID = fmt.Sprint(v)
			if oid, ok := v.(primitive.ObjectID); ok {
				doc.ID = oid.Hex()
			}
		case simplelisting.FieldOwner:
			doc.Owner, _ = v.(string)
		case simplelisting.FieldCreatedAt:
			doc.CreatedAt = asTime(v)
		case simplelisting.FieldUpdatedAt:
			doc.UpdatedAt = asTime(v)
		default:
			doc.Fields[k] = normalize(v)
		}
	}
	return doc
}

func asTime(v any) time.Time {
	switch t := v.(type) {
	case primitive.DateTime:
		return t.Time().UTC()
	case time.Time:
		return t.UTC()
	}
	return time.Time{}
}

// normalize converts driver types to the JSON-compatible values used by the
// engine: float64 numbers, []any lists and map[string]any objects.
func normalize(v any) any {
	switch x := v.(type) {
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case int:
		return float64(x)
	case primitive.A:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalize(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalize(e)
		}
		return out
	case primitive.M:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = normalize(e)
		}
		return out
	case primitive.D:
		out := make(map[string]any, len(x))
		for _, e := range x {
			out[e.Key] = normalize(e.Value)
		}
		return out
	case primitive.DateTime:
		return x.Time().UTC()
	case primitive.ObjectID:
		return x.Hex()
	}
	return v
}

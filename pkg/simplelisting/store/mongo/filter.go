package mongo

import (
	"regexp"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/tendant/simple-listing/pkg/simplelisting"
)

// Filter translates a Query into a MongoDB filter document.
func Filter(q simplelisting.Query) bson.M {
	if len(q.Clauses) == 0 {
		return bson.M{}
	}
	if len(q.Clauses) == 1 {
		return clause(q.Clauses[0])
	}
	and := make(bson.A, len(q.Clauses))
	for i, c := range q.Clauses {
		and[i] = clause(c)
	}
	return bson.M{"$and": and}
}

func field(name string) string {
	if name == simplelisting.FieldID {
		return "_id"
	}
	return name
}

func clause(c simplelisting.Clause) bson.M {
	switch c.Op {
	case simplelisting.OpNone:
		return matchNone()
	case simplelisting.OpOr:
		if len(c.Or) == 0 {
			return matchNone()
		}
		or := make(bson.A, len(c.Or))
		for i, sub := range c.Or {
			or[i] = clause(sub)
		}
		return bson.M{"$or": or}
	case simplelisting.OpEq:
		return bson.M{field(c.Field): c.Value}
	case simplelisting.OpNe:
		return bson.M{field(c.Field): bson.M{"$ne": c.Value}}
	case simplelisting.OpGte:
		return bson.M{field(c.Field): bson.M{"$gte": c.Value}}
	case simplelisting.OpLte:
		return bson.M{field(c.Field): bson.M{"$lte": c.Value}}
	case simplelisting.OpIn:
		return bson.M{field(c.Field): bson.M{"$in": bson.A(c.Values)}}
	case simplelisting.OpContains:
		s, _ := c.Value.(string)
		return bson.M{field(c.Field): bson.M{"$regex": regexp.QuoteMeta(s), "$options": "i"}}
	}
	return matchNone()
}

func matchNone() bson.M {
	return bson.M{"_id": bson.M{"$exists": false}}
}

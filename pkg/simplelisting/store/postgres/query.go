package postgres

import (
	"strconv"
	"strings"
	"time"

	"github.com/tendant/simple-listing/pkg/simplelisting"
)

// columns maps server-managed fields to table columns.
var columns = map[string]string{
	simplelisting.FieldID:        "id",
	"_id":                        "id",
	simplelisting.FieldOwner:     "owner",
	simplelisting.FieldCreatedAt: "created_at",
	simplelisting.FieldUpdatedAt: "updated_at",
}

// builder accumulates positional arguments while rendering a WHERE clause.
// Field names are always bound as arguments, never interpolated.
type builder struct {
	args []any
}

func (b *builder) arg(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

func buildWhere(collection string, q simplelisting.Query) (string, []any) {
	b := &builder{}
	parts := []string{"collection = " + b.arg(collection)}
	for _, c := range q.Clauses {
		parts = append(parts, b.clause(c))
	}
	return strings.Join(parts, " AND "), b.args
}

func (b *builder) clause(c simplelisting.Clause) string {
	switch c.Op {
	case simplelisting.OpNone:
		return "FALSE"
	case simplelisting.OpOr:
		if len(c.Or) == 0 {
			return "FALSE"
		}
		parts := make([]string, len(c.Or))
		for i, sub := range c.Or {
			parts[i] = b.clause(sub)
		}
		return "(" + strings.Join(parts, " OR ") + ")"
	}

	if col, ok := columns[c.Field]; ok {
		return b.columnClause(col, c)
	}

	key := "(" + b.arg(c.Field) + "::text)"
	switch c.Op {
	case simplelisting.OpEq:
		return b.eq(key, c.Value)
	case simplelisting.OpNe:
		return "NOT COALESCE(" + b.eq(key, c.Value) + ", FALSE)"
	case simplelisting.OpGte, simplelisting.OpLte:
		n, ok := c.Value.(float64)
		if !ok {
			return "FALSE"
		}
		return numeric(key) + " " + comparison(c.Op) + " " + b.arg(n) + "::numeric"
	case simplelisting.OpIn:
		var texts []string
		var numbers []float64
		for _, v := range c.Values {
			switch x := v.(type) {
			case float64:
				numbers = append(numbers, x)
			case string:
				texts = append(texts, x)
			}
		}
		var parts []string
		if len(texts) > 0 {
			parts = append(parts, "doc->>"+key+" = ANY("+b.arg(texts)+"::text[])")
		}
		if len(numbers) > 0 {
			parts = append(parts, numeric(key)+" = ANY("+b.arg(numbers)+"::numeric[])")
		}
		if len(parts) == 0 {
			return "FALSE"
		}
		return "(" + strings.Join(parts, " OR ") + ")"
	case simplelisting.OpContains:
		s, _ := c.Value.(string)
		return "strpos(lower(doc->>" + key + "), lower(" + b.arg(s) + "::text)) > 0"
	}
	return "FALSE"
}

func (b *builder) eq(key string, v any) string {
	switch x := v.(type) {
	case float64:
		return numeric(key) + " = " + b.arg(x) + "::numeric"
	case bool:
		return "doc->" + key + " = to_jsonb(" + b.arg(x) + "::boolean)"
	case string:
		p := b.arg(x)
		return "(doc->>" + key + " = " + p + "::text OR doc->" + key + " @> jsonb_build_array(" + p + "::text))"
	}
	return "FALSE"
}

func (b *builder) columnClause(col string, c simplelisting.Clause) string {
	if t, ok := c.Value.(time.Time); ok {
		switch c.Op {
		case simplelisting.OpGte, simplelisting.OpLte:
			return col + " " + comparison(c.Op) + " " + b.arg(t)
		case simplelisting.OpEq:
			return col + " = " + b.arg(t)
		}
		return "FALSE"
	}
	switch c.Op {
	case simplelisting.OpEq:
		s, ok := c.Value.(string)
		if !ok {
			return "FALSE"
		}
		return col + " = " + b.arg(s) + "::text"
	case simplelisting.OpNe:
		s, _ := c.Value.(string)
		return col + " <> " + b.arg(s) + "::text"
	case simplelisting.OpIn:
		var values []string
		for _, v := range c.Values {
			if s, ok := v.(string); ok {
				values = append(values, s)
			}
		}
		if len(values) == 0 {
			return "FALSE"
		}
		return col + " = ANY(" + b.arg(values) + "::text[])"
	case simplelisting.OpContains:
		s, _ := c.Value.(string)
		return "strpos(lower(" + col + "), lower(" + b.arg(s) + "::text)) > 0"
	}
	return "FALSE"
}

// numeric yields the field as numeric, or NULL when it is not a JSON number.
func numeric(key string) string {
	return "CASE WHEN jsonb_typeof(doc->" + key + ") = 'number' THEN (doc->>" + key + ")::numeric END"
}

func comparison(op simplelisting.Op) string {
	if op == simplelisting.OpGte {
		return ">="
	}
	return "<="
}

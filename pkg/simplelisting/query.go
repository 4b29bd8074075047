package simplelisting

// Op is a predicate operator understood by every Store.
type Op string

const (
	OpEq       Op = "eq"
	OpNe       Op = "ne"
	OpGte      Op = "gte"
	OpLte      Op = "lte"
	OpIn       Op = "in"
	OpContains Op = "contains" // case-insensitive substring
	OpOr       Op = "or"
	OpNone     Op = "none" // matches nothing
)

// Clause is a single predicate on one field, or a disjunction of clauses.
//
// Values are strings, float64 or bool. Equality against a list-valued field
// matches when any element is equal.
type Clause struct {
	Field  string
	Op     Op
	Value  any
	Values []any
	Or     []Clause
}

// Query is a conjunction of clauses. The zero Query matches everything.
type Query struct {
	Clauses []Clause
}

// FindOptions is the page window of a Find.
type FindOptions struct {
	Skip  int
	Limit int
}

// And returns a copy of q with clauses appended.
func (q Query) And(clauses ...Clause) Query {
	out := make([]Clause, 0, len(q.Clauses)+len(clauses))
	out = append(out, q.Clauses...)
	out = append(out, clauses...)
	return Query{Clauses: out}
}

func Eq(field string, v any) Clause  { return Clause{Field: field, Op: OpEq, Value: v} }
func Ne(field string, v any) Clause  { return Clause{Field: field, Op: OpNe, Value: v} }
func Gte(field string, v any) Clause { return Clause{Field: field, Op: OpGte, Value: v} }
func Lte(field string, v any) Clause { return Clause{Field: field, Op: OpLte, Value: v} }

func In(field string, values ...any) Clause {
	return Clause{Field: field, Op: OpIn, Values: values}
}

func Contains(field, substr string) Clause {
	return Clause{Field: field, Op: OpContains, Value: substr}
}

// AnyOf matches when at least one clause matches.
func AnyOf(clauses ...Clause) Clause {
	return Clause{Op: OpOr, Or: clauses}
}

// MatchNone matches no document.
func MatchNone() Clause {
	return Clause{Op: OpNone}
}

// Where builds a Query from clauses.
func Where(clauses ...Clause) Query {
	return Query{Clauses: clauses}
}

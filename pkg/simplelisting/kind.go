package simplelisting

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// FieldType is the stored type of a kind field.
type FieldType int

const (
	FieldString FieldType = iota
	FieldNumber
	FieldBool
	FieldRef     // id of another document
	FieldRefList // ordered ids of other documents
	FieldList    // list of arbitrary values
	FieldObject
)

func (t FieldType) String() string {
	switch t {
	case FieldString:
		return "string"
	case FieldNumber:
		return "number"
	case FieldBool:
		return "bool"
	case FieldRef:
		return "ref"
	case FieldRefList:
		return "ref list"
	case FieldList:
		return "list"
	case FieldObject:
		return "object"
	}
	return "unknown"
}

// Field describes one field of a kind.
type Field struct {
	Name      string
	Type      FieldType
	Required  bool
	Lowercase bool
	Enum      []string
	Min       *float64
}

// LinkedField is a reference field eligible for linked-object resolution.
type LinkedField struct {
	Field  string
	Target string // kind name
}

// Kind is the static configuration of one resource kind.
type Kind struct {
	Name       string
	Collection string
	Fields     []Field

	// UniqueFields are checked against the store before every write.
	UniqueFields []string
	LinkedFields []LinkedField

	// SlugField is the human-readable unique key used by GetBySlug.
	SlugField string
	// NaturalKey identifies an existing document during linked-object dedup.
	NaturalKey string
	// MediaField receives the id of a Media document resolved from an upload.
	MediaField string

	// CreateRoles may create documents owned by another principal.
	CreateRoles []string
	// MutateRoles may update or delete documents they do not own.
	MutateRoles []string
}

// Field looks up a field by name.
func (k Kind) Field(name string) (Field, bool) {
	for _, f := range k.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Normalize coerces payload into the kind's schema and returns the typed
// fields. Unknown and server-managed keys are dropped. With partial set only
// the keys present in payload are checked for presence.
func (k Kind) Normalize(payload map[string]any, partial bool) (map[string]any, error) {
	out := make(map[string]any, len(payload))
	for _, f := range k.Fields {
		raw, present := payload[f.Name]
		if !present {
			if f.Required && !partial {
				return nil, validationError(k.Name, "validate", f.Name, fmt.Sprintf("%s is required", f.Name))
			}
			continue
		}
		v, err := coerce(f, raw)
		if err != nil {
			return nil, validationError(k.Name, "validate", f.Name, fmt.Sprintf("%s: %v", f.Name, err))
		}
		if f.Required && isEmpty(v) {
			return nil, validationError(k.Name, "validate", f.Name, fmt.Sprintf("%s is required", f.Name))
		}
		out[f.Name] = v
	}
	return out, nil
}

func coerce(f Field, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	switch f.Type {
	case FieldString, FieldRef:
		s, err := asString(raw)
		if err != nil {
			return nil, err
		}
		if f.Lowercase {
			s = strings.ToLower(strings.TrimSpace(s))
		}
		if len(f.Enum) > 0 && s != "" && !slices.Contains(f.Enum, s) {
			return nil, fmt.Errorf("must be one of %s", strings.Join(f.Enum, ", "))
		}
		return s, nil
	case FieldNumber:
		n, ok, err := asNumber(raw)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		if f.Min != nil && n < *f.Min {
			return nil, fmt.Errorf("must be at least %v", *f.Min)
		}
		return n, nil
	case FieldBool:
		switch x := raw.(type) {
		case bool:
			return x, nil
		case string:
			if strings.TrimSpace(x) == "" {
				return nil, nil
			}
			b, err := strconv.ParseBool(strings.TrimSpace(x))
			if err != nil {
				return nil, fmt.Errorf("expected a boolean")
			}
			return b, nil
		}
		return nil, fmt.Errorf("expected a boolean")
	case FieldRefList:
		items := asList(raw)
		out := make([]any, 0, len(items))
		for _, item := range items {
			s, err := asString(item)
			if err != nil {
				return nil, fmt.Errorf("expected a list of ids")
			}
			out = append(out, s)
		}
		return out, nil
	case FieldList:
		return cloneValue(asList(raw)), nil
	case FieldObject:
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expected an object")
		}
		return cloneMap(m), nil
	}
	return nil, fmt.Errorf("unsupported field type %s", f.Type)
}

func asString(raw any) (string, error) {
	switch x := raw.(type) {
	case string:
		return x, nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case bool:
		return strconv.FormatBool(x), nil
	}
	return "", fmt.Errorf("expected a string")
}

// asNumber reports ok=false for blank strings.
func asNumber(raw any) (float64, bool, error) {
	var n float64
	switch x := raw.(type) {
	case float64:
		n = x
	case float32:
		n = float64(x)
	case int:
		n = float64(x)
	case int32:
		n = float64(x)
	case int64:
		n = float64(x)
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, false, nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false, fmt.Errorf("expected a number")
		}
		n = v
	default:
		return 0, false, fmt.Errorf("expected a number")
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false, fmt.Errorf("expected a finite number")
	}
	return n, true, nil
}

func asList(raw any) []any {
	switch x := raw.(type) {
	case []any:
		return x
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out
	case nil:
		return nil
	}
	return []any{raw}
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []any:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	}
	return false
}

package simplelisting

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"time"
)

// Server-managed document fields.
const (
	FieldID        = "id"
	FieldOwner     = "owner"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

// Document is a stored resource of any kind.
type Document struct {
	ID        string
	Owner     string
	CreatedAt time.Time
	UpdatedAt time.Time
	Fields    map[string]any
}

// Value returns a field value, including the server-managed fields.
func (d *Document) Value(field string) (any, bool) {
	switch field {
	case FieldID, "_id":
		return d.ID, true
	case FieldOwner:
		return d.Owner, true
	case FieldCreatedAt:
		return d.CreatedAt, true
	case FieldUpdatedAt:
		return d.UpdatedAt, true
	}
	v, ok := d.Fields[field]
	return v, ok
}

// String returns a field as a string, or "" if absent or not a string.
func (d *Document) String(field string) string {
	v, _ := d.Value(field)
	s, _ := v.(string)
	return s
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	c.Fields = cloneMap(d.Fields)
	return &c
}

// MarshalJSON flattens server fields and kind fields into one object.
func (d *Document) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Fields)+4)
	for k, v := range d.Fields {
		out[k] = v
	}
	out[FieldID] = d.ID
	out[FieldOwner] = d.Owner
	out[FieldCreatedAt] = d.CreatedAt
	out[FieldUpdatedAt] = d.UpdatedAt
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (d *Document) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	d.ID, _ = raw[FieldID].(string)
	d.Owner, _ = raw[FieldOwner].(string)
	for _, f := range []struct {
		name string
		dst  *time.Time
	}{{FieldCreatedAt, &d.CreatedAt}, {FieldUpdatedAt, &d.UpdatedAt}} {
		s, ok := raw[f.name].(string)
		if !ok {
			continue
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", f.name, err)
		}
		*f.dst = t
	}
	for _, k := range []string{FieldID, FieldOwner, FieldCreatedAt, FieldUpdatedAt} {
		delete(raw, k)
	}
	d.Fields = raw
	return nil
}

// Principal is the authenticated actor of a request.
type Principal struct {
	ID    string
	Roles []string
}

// HasRole reports whether the principal holds any of roles.
func (p *Principal) HasRole(roles ...string) bool {
	if p == nil {
		return false
	}
	for _, r := range roles {
		if slices.Contains(p.Roles, r) {
			return true
		}
	}
	return false
}

// Upload is a single file attached to a create or update request.
type Upload struct {
	FileName    string
	ContentType string
	AltText     string
	Reader      io.Reader
}

// CreateRequest contains parameters for creating a resource
type CreateRequest struct {
	Payload map[string]any
	Upload  *Upload
}

// UpdateRequest contains parameters for a partial update
type UpdateRequest struct {
	ID      string
	Payload map[string]any
	Upload  *Upload
}

// ListRequest contains list filters and the page window
type ListRequest struct {
	Filters map[string]string
	Page    int
	Limit   int
}

// ListResult is one page of a list together with the total match count.
type ListResult struct {
	Items []*Document `json:"items"`
	Total int64       `json:"total"`
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
}

// BatchResult reports the outcome of a batch operation per item.
type BatchResult struct {
	Items   []*Document       `json:"items"`
	Deleted int               `json:"deleted,omitempty"`
	Results []BatchItemResult `json:"results"`
}

// BatchItemResult is the outcome of one item of a batch.
type BatchItemResult struct {
	Index int    `json:"index"`
	ID    string `json:"id,omitempty"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Err   error  `json:"-"`
}

// ObjectMeta describes a stored blob
type ObjectMeta struct {
	Key         string
	Size        int64
	ContentType string
	UpdatedAt   time.Time
	ETag        string
	Metadata    map[string]string
}

// UploadParams contains parameters for uploading a blob
type UploadParams struct {
	ObjectKey string
	MimeType  string
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return cloneMap(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return slices.Clone(x)
	default:
		return v
	}
}

package records

import "fmt"

// Paging bounds.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Field selects a record field in a query; it mirrors the platform's
// {"field":{"Name":"..."}} wire shape.
type Field struct {
	Field FieldRef `json:"field"`
}

type FieldRef struct {
	Name string `json:"Name"`
}

// Fields builds a field list from names.
func Fields(names ...string) []Field {
	out := make([]Field, len(names))
	for i, n := range names {
		out[i] = Field{Field: FieldRef{Name: n}}
	}
	return out
}

type SortType string

const (
	Asc  SortType = "ASC"
	Desc SortType = "DESC"
)

// OrderBy sorts a fetch by one field.
type OrderBy struct {
	FieldName string   `json:"fieldName"`
	SortType  SortType `json:"sorttype"`
}

// PagingInfo is an offset window into a fetch.
type PagingInfo struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// Query describes a fetch against a collection.
type Query struct {
	Fields     []Field     `json:"fields,omitempty"`
	OrderBy    []OrderBy   `json:"orderBy,omitempty"`
	PagingInfo *PagingInfo `json:"pagingInfo,omitempty"`
}

// FieldNames returns the selected field names in order.
func (q Query) FieldNames() []string {
	out := make([]string, 0, len(q.Fields))
	for _, f := range q.Fields {
		out = append(out, f.Field.Name)
	}
	return out
}

// Validate checks field names, sort types and paging bounds.
func (q Query) Validate() error {
	for _, name := range q.FieldNames() {
		if !ValidFieldName(name) {
			return fmt.Errorf("invalid field name %q", name)
		}
	}
	for _, o := range q.OrderBy {
		if !ValidFieldName(o.FieldName) {
			return fmt.Errorf("invalid order field %q", o.FieldName)
		}
		if o.SortType != "" && o.SortType != Asc && o.SortType != Desc {
			return fmt.Errorf("invalid sort type %q", o.SortType)
		}
	}
	if q.PagingInfo != nil {
		if _, err := NormalizePaging(*q.PagingInfo); err != nil {
			return err
		}
	}
	return nil
}

// NormalizePaging applies the default limit and enforces bounds.
func NormalizePaging(p PagingInfo) (PagingInfo, error) {
	if p.Limit == 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit < 0 {
		return PagingInfo{}, fmt.Errorf("limit too small, must be larger than 0")
	}
	if p.Limit > MaxLimit {
		return PagingInfo{}, fmt.Errorf("limit too large, must be at most %d", MaxLimit)
	}
	if p.Offset < 0 {
		return PagingInfo{}, fmt.Errorf("offset must not be negative")
	}
	return p, nil
}

package records

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Project keeps only the listed fields. An empty list keeps every field.
func Project(r Record, fields []string) Record {
	if len(fields) == 0 {
		return r.Clone()
	}
	out := make(Record, len(fields))
	for _, f := range fields {
		if v, ok := r[f]; ok {
			out[f] = v
		}
	}
	return out
}

// Sort orders recs in place by the given keys.
func Sort(recs []Record, orderBy []OrderBy) {
	if len(orderBy) == 0 {
		return
	}
	slices.SortStableFunc(recs, func(a, b Record) int {
		for _, o := range orderBy {
			c := compareValues(a[o.FieldName], b[o.FieldName])
			if o.SortType == Desc {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
}

// Page slices recs to the paging window. A nil window returns recs as is.
func Page(recs []Record, p *PagingInfo) []Record {
	if p == nil {
		return recs
	}
	if p.Offset >= len(recs) {
		return []Record{}
	}
	end := len(recs)
	if p.Limit > 0 && p.Offset+p.Limit < end {
		end = p.Offset + p.Limit
	}
	return recs[p.Offset:end]
}

// Apply runs ordering, paging and projection for backends that cannot push
// them down to the server. A paging window without a limit gets DefaultLimit.
func Apply(recs []Record, q Query) []Record {
	Sort(recs, q.OrderBy)
	window := q.PagingInfo
	if window != nil {
		if p, err := NormalizePaging(*window); err == nil {
			window = &p
		}
	}
	page := Page(recs, window)
	fields := q.FieldNames()
	out := make([]Record, len(page))
	for i, r := range page {
		out[i] = Project(r, fields)
	}
	return out
}

// compareValues orders nil first, then numbers, booleans, timestamps and
// strings by their natural order.
func compareValues(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	if an, ok := toFloat(a); ok {
		if bn, ok := toFloat(b); ok {
			switch {
			case an < bn:
				return -1
			case an > bn:
				return 1
			}
			return 0
		}
	}
	if ab, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			switch {
			case ab == bb:
				return 0
			case !ab:
				return -1
			}
			return 1
		}
	}
	if at, ok := a.(time.Time); ok {
		if bt, ok := b.(time.Time); ok {
			return at.Compare(bt)
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

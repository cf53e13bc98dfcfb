// Package records defines the generic record contract spoken by every
// storage backend: collections of flat records fetched with field lists,
// ordering and paging, and written in batches with per-record results.
package records

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// System fields present on every record.
const (
	FieldID         = "Id"
	FieldName       = "Name"
	FieldTags       = "Tags"
	FieldCreatedOn  = "CreatedOn"
	FieldModifiedOn = "ModifiedOn"
)

// Record is a single row of a collection keyed by field name.
type Record map[string]any

// ID returns the numeric record identifier.
func (r Record) ID() (int64, bool) {
	return toInt64(r[FieldID])
}

func (r Record) String(field string) string {
	switch v := r[field].(type) {
	case string:
		return v
	case nil:
		return ""
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

func (r Record) Bool(field string) bool {
	switch v := r[field].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

func (r Record) Int(field string) int {
	n, _ := toInt64(r[field])
	return int(n)
}

func (r Record) Int64(field string) int64 {
	n, _ := toInt64(r[field])
	return n
}

// Time parses an RFC 3339 field. Missing or malformed values yield nil.
func (r Record) Time(field string) *time.Time {
	switch v := r[field].(type) {
	case time.Time:
		t := v.UTC()
		return &t
	case string:
		if v == "" {
			return nil
		}
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil
		}
		t = t.UTC()
		return &t
	}
	return nil
}

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	}
	return 0, false
}

var fieldNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidFieldName reports whether name is safe to use as a field identifier.
func ValidFieldName(name string) bool {
	return fieldNamePattern.MatchString(name)
}

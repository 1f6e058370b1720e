package docstore

import (
	"strings"
	"time"
)

// Fields is the content of a document.
type Fields map[string]any

// Lookup resolves a dotted field path.
func (f Fields) Lookup(path string) (any, bool) {
	var cur any = map[string]any(f)
	for _, part := range strings.Split(path, ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func (f Fields) String(path string) string {
	v, _ := f.Lookup(path)
	s, _ := v.(string)
	return s
}

func (f Fields) Int64(path string) int64 {
	v, _ := f.Lookup(path)
	n, _ := toInt64(v)
	return n
}

func (f Fields) Bool(path string) bool {
	v, _ := f.Lookup(path)
	b, _ := v.(bool)
	return b
}

// Time accepts time.Time values and epoch milliseconds.
func (f Fields) Time(path string) time.Time {
	v, _ := f.Lookup(path)
	return toTime(v)
}

// Map returns a nested map, or nil.
func (f Fields) Map(path string) Fields {
	v, _ := f.Lookup(path)
	m, _ := asMap(v)
	return m
}

func (f Fields) StringSlice(path string) []string {
	v, _ := f.Lookup(path)
	switch s := v.(type) {
	case []string:
		return append([]string(nil), s...)
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

// Has reports whether the dotted path is present.
func (f Fields) Has(path string) bool {
	_, ok := f.Lookup(path)
	return ok
}

func asMap(v any) (Fields, bool) {
	switch m := v.(type) {
	case Fields:
		return m, true
	case map[string]any:
		return m, true
	}
	return nil, false
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	case float32:
		return int64(n), true
	}
	return 0, false
}

func toTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case *time.Time:
		if t != nil {
			return *t
		}
	case int64:
		return time.UnixMilli(t)
	case float64:
		return time.UnixMilli(int64(t))
	}
	return time.Time{}
}

package docstore

import (
	"reflect"
	"sort"
	"strings"
	"time"
)

// Apply writes updates into a copy of current and resolves sentinels against
// now. With deep=true nested maps are merged key by key (set with merge),
// otherwise a map value replaces whatever was stored at its path (update).
func Apply(current, updates Fields, now time.Time, deep bool) Fields {
	out := Clone(current)
	if out == nil {
		out = Fields{}
	}
	for key, value := range updates {
		applyPath(out, strings.Split(key, "."), value, now, deep)
	}
	return out
}

// Resolve replaces sentinels in a fresh document.
func Resolve(fields Fields, now time.Time) Fields {
	return Apply(nil, fields, now, false)
}

func applyPath(dst map[string]any, parts []string, value any, now time.Time, deep bool) {
	for _, part := range parts[:len(parts)-1] {
		next, ok := asMap(dst[part])
		if !ok {
			next = Fields{}
			dst[part] = next
		}
		dst = next
	}
	last := parts[len(parts)-1]

	if IsServerTimestamp(value) {
		dst[last] = now
		return
	}
	if n, ok := IncrementValue(value); ok {
		prev, _ := toInt64(dst[last])
		dst[last] = prev + n
		return
	}
	if m, ok := asMap(value); ok {
		existing, isMap := asMap(dst[last])
		if !deep || !isMap {
			existing = Fields{}
		}
		for k, v := range m {
			applyPath(existing, []string{k}, v, now, deep)
		}
		dst[last] = existing
		return
	}
	dst[last] = cloneValue(value)
}

// Clone deep copies fields.
func Clone(f Fields) Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Fields:
		return Clone(t)
	case map[string]any:
		return Clone(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	}
	return v
}

// Matches reports whether doc passes every filter.
func Matches(doc Document, filters []Filter) bool {
	for _, f := range filters {
		var v any
		var ok bool
		if f.Field == FieldID {
			v, ok = doc.ID, true
		} else {
			v, ok = doc.Fields.Lookup(f.Field)
		}
		if !ok {
			return false
		}
		switch f.Op {
		case OpEqual:
			if Compare(v, f.Value) != 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// Evaluate runs q over the documents of its collection. Documents missing the
// order field are left out, as ordered queries do on the platform.
func Evaluate(docs []Document, q Query) []Document {
	out := make([]Document, 0, len(docs))
	for _, doc := range docs {
		if !Matches(doc, q.Where) {
			continue
		}
		if q.OrderBy != "" && q.OrderBy != FieldID && !doc.Fields.Has(q.OrderBy) {
			continue
		}
		out = append(out, doc)
	}

	sort.SliceStable(out, func(i, j int) bool {
		c := 0
		if q.OrderBy != "" {
			c = Compare(orderValue(out[i], q.OrderBy), orderValue(out[j], q.OrderBy))
		}
		if c == 0 {
			c = strings.Compare(out[i].ID, out[j].ID)
		}
		if q.Desc {
			return c > 0
		}
		return c < 0
	})

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

func orderValue(doc Document, field string) any {
	if field == FieldID {
		return doc.ID
	}
	v, _ := doc.Fields.Lookup(field)
	return v
}

// Compare orders values of the same kind. Values of different kinds compare
// by kind rank so sorting stays deterministic.
func Compare(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return cmpInt(int64(ra), int64(rb))
	}
	switch ra {
	case rankNumber:
		fa, fb := toFloat(a), toFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case rankBool:
		ba, bb := a.(bool), b.(bool)
		switch {
		case ba == bb:
			return 0
		case !ba:
			return -1
		}
		return 1
	case rankTime:
		return toTime(a).Compare(toTime(b))
	case rankString:
		return strings.Compare(a.(string), b.(string))
	case rankNull:
		return 0
	}
	if reflect.DeepEqual(a, b) {
		return 0
	}
	return -1
}

const (
	rankNull = iota
	rankBool
	rankNumber
	rankTime
	rankString
	rankOther
)

func rank(v any) int {
	switch v.(type) {
	case nil:
		return rankNull
	case bool:
		return rankBool
	case int, int32, int64, float32, float64:
		return rankNumber
	case time.Time, *time.Time:
		return rankTime
	case string:
		return rankString
	}
	return rankOther
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	}
	i, _ := toInt64(v)
	return float64(i)
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

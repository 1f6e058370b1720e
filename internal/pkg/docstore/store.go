// Package docstore describes the real-time document store the chat core runs on.
//
// Documents live at slash separated paths ("conversations/general/messages/m1").
// A collection path has an odd number of segments, a document path an even one.
// Subscriptions always deliver full result sets, never diffs.
package docstore

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrNotFound    = errors.New("docstore: document not found")
	ErrInvalidPath = errors.New("docstore: invalid path")
)

// FieldID can be used in a Filter or as OrderBy to address the document id.
const FieldID = "__id__"

type Op string

const (
	OpEqual Op = "=="
)

type Filter struct {
	Field string
	Op    Op
	Value any
}

// Query selects documents of one collection.
type Query struct {
	Collection string
	Where      []Filter
	OrderBy    string
	Desc       bool
	Limit      int
}

// WhereEq returns a copy of q with an equality filter added.
func (q Query) WhereEq(field string, value any) Query {
	where := make([]Filter, 0, len(q.Where)+1)
	where = append(where, q.Where...)
	q.Where = append(where, Filter{Field: field, Op: OpEqual, Value: value})
	return q
}

type Document struct {
	ID     string
	Path   string
	Fields Fields
}

// SnapshotFunc receives the complete result set of a query each time it changes.
type SnapshotFunc func(docs []Document)

// DocumentFunc receives the current state of a single document. exists is
// false when the document is absent (or was deleted).
type DocumentFunc func(doc Document, exists bool)

// Store is the contract the chat core needs from its backend.
//
// Set with merge=true keeps fields that are not named in fields and deep merges
// nested maps; merge=false replaces the document. Update fails with ErrNotFound
// when the document is absent. Keys containing "." address nested map entries.
//
// Subscribe and Watch fire once with the current state and again after every
// change, until the returned cancel func is called. Deliveries for one
// subscription are never reordered; nothing is promised across subscriptions.
type Store interface {
	Get(ctx context.Context, path string) (Document, error)
	Set(ctx context.Context, path string, fields Fields, merge bool) error
	Update(ctx context.Context, path string, fields Fields) error
	Delete(ctx context.Context, path string) error
	Query(ctx context.Context, q Query) ([]Document, error)
	Subscribe(ctx context.Context, q Query, fn SnapshotFunc) (cancel func(), err error)
	Watch(ctx context.Context, path string, fn DocumentFunc) (cancel func(), err error)
}

type serverTimestamp struct{}

type increment struct {
	n int64
}

// ServerTimestamp is replaced by the store's clock when the write commits.
func ServerTimestamp() any {
	return serverTimestamp{}
}

// Increment adds n to the stored numeric value (0 when absent) at commit time.
func Increment(n int64) any {
	return increment{n: n}
}

func IsServerTimestamp(v any) bool {
	_, ok := v.(serverTimestamp)
	return ok
}

func IncrementValue(v any) (int64, bool) {
	inc, ok := v.(increment)
	return inc.n, ok
}

// Join builds a path from segments.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

// Split returns the parent collection path and the id of a document path.
func Split(path string) (collection, id string, err error) {
	parts := strings.Split(path, "/")
	if len(parts) < 2 || len(parts)%2 != 0 {
		return "", "", ErrInvalidPath
	}
	for _, p := range parts {
		if p == "" {
			return "", "", ErrInvalidPath
		}
	}
	return strings.Join(parts[:len(parts)-1], "/"), parts[len(parts)-1], nil
}

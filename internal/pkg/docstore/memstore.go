package docstore

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Write is one committed mutation, recorded by MemStore.
type Write struct {
	Op     string
	Path   string
	Fields Fields
}

type memSub struct {
	query     *Query
	path      string
	snapshot  SnapshotFunc
	document  DocumentFunc
	cancelled bool
}

type delivery struct {
	sub *memSub
	run func()
}

// MemStore is an in-memory Store. Snapshots are delivered from a single
// dispatch loop: a callback that writes to the store never re-enters another
// callback, its effects are queued behind the current one. Delivery can be
// paused, duplicated, or kept flowing to cancelled subscriptions to mimic a
// slow or replaying backend.
type MemStore struct {
	mu          sync.Mutex
	docs        map[string]Fields
	subs        map[*memSub]struct{}
	queue       []delivery
	dispatching bool
	paused      bool
	duplicate   bool
	late        bool
	failures    map[string]error
	writes      []Write
	clock       func() time.Time
}

type MemOption func(*MemStore)

func WithClock(clock func() time.Time) MemOption {
	return func(m *MemStore) {
		m.clock = clock
	}
}

func NewMemStore(opts ...MemOption) *MemStore {
	m := &MemStore{
		docs:     make(map[string]Fields),
		subs:     make(map[*memSub]struct{}),
		failures: make(map[string]error),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Pause holds snapshot delivery until Resume.
func (m *MemStore) Pause() {
	m.mu.Lock()
	m.paused = true
	m.mu.Unlock()
}

func (m *MemStore) Resume() {
	m.mu.Lock()
	m.paused = false
	m.mu.Unlock()
	m.drain()
}

// SetDuplicateDelivery makes every snapshot arrive twice.
func (m *MemStore) SetDuplicateDelivery(on bool) {
	m.mu.Lock()
	m.duplicate = on
	m.mu.Unlock()
}

// SetLateDelivery keeps already queued snapshots flowing to cancelled
// subscriptions.
func (m *MemStore) SetLateDelivery(on bool) {
	m.mu.Lock()
	m.late = on
	m.mu.Unlock()
}

// FailWrites makes every write under pathPrefix fail with err. A nil err
// clears the failure.
func (m *MemStore) FailWrites(pathPrefix string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, pathPrefix)
		return
	}
	m.failures[pathPrefix] = err
}

// Writes returns the committed writes in commit order.
func (m *MemStore) Writes() []Write {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Write(nil), m.writes...)
}

func (m *MemStore) ResetWrites() {
	m.mu.Lock()
	m.writes = nil
	m.mu.Unlock()
}

func (m *MemStore) Get(ctx context.Context, path string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	if _, _, err := Split(path); err != nil {
		return Document{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	fields, ok := m.docs[path]
	if !ok {
		return Document{}, ErrNotFound
	}
	return m.document(path, fields), nil
}

func (m *MemStore) Set(ctx context.Context, path string, fields Fields, merge bool) error {
	return m.write(ctx, "set", path, fields, func(cur Fields, _ bool, now time.Time) (Fields, bool, error) {
		if merge {
			return Apply(cur, fields, now, true), true, nil
		}
		return Resolve(fields, now), true, nil
	})
}

func (m *MemStore) Update(ctx context.Context, path string, fields Fields) error {
	return m.write(ctx, "update", path, fields, func(cur Fields, exists bool, now time.Time) (Fields, bool, error) {
		if !exists {
			return nil, false, ErrNotFound
		}
		return Apply(cur, fields, now, false), true, nil
	})
}

func (m *MemStore) Delete(ctx context.Context, path string) error {
	return m.write(ctx, "delete", path, nil, func(Fields, bool, time.Time) (Fields, bool, error) {
		return nil, false, nil
	})
}

func (m *MemStore) Query(ctx context.Context, q Query) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.evaluate(q), nil
}

func (m *MemStore) Subscribe(ctx context.Context, q Query, fn SnapshotFunc) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query := q
	sub := &memSub{query: &query, snapshot: fn}
	m.mu.Lock()
	m.subs[sub] = struct{}{}
	m.enqueueLocked(sub)
	m.mu.Unlock()
	m.drain()
	return m.canceller(ctx, sub), nil
}

func (m *MemStore) Watch(ctx context.Context, path string, fn DocumentFunc) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, _, err := Split(path); err != nil {
		return nil, err
	}
	sub := &memSub{path: path, document: fn}
	m.mu.Lock()
	m.subs[sub] = struct{}{}
	m.enqueueLocked(sub)
	m.mu.Unlock()
	m.drain()
	return m.canceller(ctx, sub), nil
}

func (m *MemStore) canceller(ctx context.Context, sub *memSub) func() {
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			sub.cancelled = true
			delete(m.subs, sub)
			m.mu.Unlock()
		})
	}
	context.AfterFunc(ctx, cancel)
	return cancel
}

type mutation func(cur Fields, exists bool, now time.Time) (Fields, bool, error)

func (m *MemStore) write(ctx context.Context, op, path string, fields Fields, fn mutation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	collection, _, err := Split(path)
	if err != nil {
		return err
	}

	m.mu.Lock()
	for prefix, ferr := range m.failures {
		if strings.HasPrefix(path, prefix) {
			m.mu.Unlock()
			return ferr
		}
	}
	cur, exists := m.docs[path]
	next, keep, err := fn(cur, exists, m.clock())
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if keep {
		m.docs[path] = next
	} else {
		delete(m.docs, path)
	}
	m.writes = append(m.writes, Write{Op: op, Path: path, Fields: Clone(fields)})
	for sub := range m.subs {
		if (sub.query != nil && sub.query.Collection == collection) || sub.path == path {
			m.enqueueLocked(sub)
		}
	}
	m.mu.Unlock()

	m.drain()
	return nil
}

// enqueueLocked captures the subscription's current result so later writes
// cannot leak into an earlier snapshot.
func (m *MemStore) enqueueLocked(sub *memSub) {
	var run func()
	if sub.query != nil {
		docs := m.evaluate(*sub.query)
		run = func() { sub.snapshot(docs) }
	} else {
		fields, ok := m.docs[sub.path]
		doc := m.document(sub.path, fields)
		run = func() { sub.document(doc, ok) }
	}
	m.queue = append(m.queue, delivery{sub: sub, run: run})
	if m.duplicate {
		m.queue = append(m.queue, delivery{sub: sub, run: run})
	}
}

func (m *MemStore) drain() {
	m.mu.Lock()
	if m.dispatching || m.paused {
		m.mu.Unlock()
		return
	}
	m.dispatching = true
	for len(m.queue) > 0 && !m.paused {
		d := m.queue[0]
		m.queue = m.queue[1:]
		if d.sub.cancelled && !m.late {
			continue
		}
		m.mu.Unlock()
		d.run()
		m.mu.Lock()
	}
	m.dispatching = false
	m.mu.Unlock()
}

func (m *MemStore) evaluate(q Query) []Document {
	docs := make([]Document, 0)
	for path, fields := range m.docs {
		collection, _, err := Split(path)
		if err != nil || collection != q.Collection {
			continue
		}
		docs = append(docs, m.document(path, fields))
	}
	return Evaluate(docs, q)
}

func (m *MemStore) document(path string, fields Fields) Document {
	_, id, _ := Split(path)
	return Document{ID: id, Path: path, Fields: Clone(fields)}
}

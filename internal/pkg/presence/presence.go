// Package presence is the realtime presence service the chat core registers with.
package presence

import (
	"Huddle/internal/model"
	"context"
	"sync"
)

// Backend mirrors what a realtime presence database offers: a connection
// state stream, server-side on-disconnect writes and a key-value feed.
//
// WatchConnection calls fn on every change of the caller's connection.
// Subscribe calls fn with the complete user id -> record mapping, once
// immediately and then after every change.
type Backend interface {
	WatchConnection(ctx context.Context, key string, fn func(connected bool)) (cancel func(), err error)
	SetOnDisconnect(ctx context.Context, key string, rec model.PresenceRecord) error
	SetValue(ctx context.Context, key string, rec model.PresenceRecord) error
	Subscribe(ctx context.Context, fn func(map[string]model.PresenceRecord)) (cancel func(), err error)
	// Disconnect commits the registered on-disconnect value now.
	Disconnect(ctx context.Context, key string) error
}

// Memory is an in-process Backend. Callbacks run synchronously on the caller
// of the mutating method.
type Memory struct {
	mu           sync.Mutex
	values       map[string]model.PresenceRecord
	onDisconnect map[string]model.PresenceRecord
	connected    map[string]bool
	watchers     map[*memWatcher]struct{}
	feeds        map[*memFeed]struct{}
}

type memWatcher struct {
	key string
	fn  func(connected bool)
}

type memFeed struct {
	fn func(map[string]model.PresenceRecord)
}

func NewMemory() *Memory {
	return &Memory{
		values:       make(map[string]model.PresenceRecord),
		onDisconnect: make(map[string]model.PresenceRecord),
		connected:    make(map[string]bool),
		watchers:     make(map[*memWatcher]struct{}),
		feeds:        make(map[*memFeed]struct{}),
	}
}

func (m *Memory) WatchConnection(ctx context.Context, key string, fn func(connected bool)) (func(), error) {
	w := &memWatcher{key: key, fn: fn}
	m.mu.Lock()
	m.watchers[w] = struct{}{}
	connected := m.connected[key]
	m.mu.Unlock()

	fn(connected)

	cancel := func() {
		m.mu.Lock()
		delete(m.watchers, w)
		m.mu.Unlock()
	}
	context.AfterFunc(ctx, cancel)
	return cancel, nil
}

func (m *Memory) SetOnDisconnect(_ context.Context, key string, rec model.PresenceRecord) error {
	m.mu.Lock()
	m.onDisconnect[key] = rec
	m.mu.Unlock()
	return nil
}

func (m *Memory) SetValue(_ context.Context, key string, rec model.PresenceRecord) error {
	m.mu.Lock()
	m.values[key] = rec
	m.mu.Unlock()
	m.broadcast()
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, fn func(map[string]model.PresenceRecord)) (func(), error) {
	f := &memFeed{fn: fn}
	m.mu.Lock()
	m.feeds[f] = struct{}{}
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	fn(snapshot)

	cancel := func() {
		m.mu.Lock()
		delete(m.feeds, f)
		m.mu.Unlock()
	}
	context.AfterFunc(ctx, cancel)
	return cancel, nil
}

func (m *Memory) Disconnect(_ context.Context, key string) error {
	m.mu.Lock()
	rec, ok := m.onDisconnect[key]
	if ok {
		m.values[key] = rec
		delete(m.onDisconnect, key)
	}
	m.mu.Unlock()
	if ok {
		m.broadcast()
	}
	return nil
}

// SetConnected simulates the transport going up or down for key. Losing the
// connection commits the registered on-disconnect value, as the server would.
func (m *Memory) SetConnected(key string, connected bool) {
	m.mu.Lock()
	m.connected[key] = connected
	var watchers []*memWatcher
	for w := range m.watchers {
		if w.key == key {
			watchers = append(watchers, w)
		}
	}
	m.mu.Unlock()

	if !connected {
		_ = m.Disconnect(context.Background(), key)
	}
	for _, w := range watchers {
		w.fn(connected)
	}
}

func (m *Memory) broadcast() {
	m.mu.Lock()
	snapshot := m.snapshotLocked()
	feeds := make([]*memFeed, 0, len(m.feeds))
	for f := range m.feeds {
		feeds = append(feeds, f)
	}
	m.mu.Unlock()

	for _, f := range feeds {
		f.fn(copyRecords(snapshot))
	}
}

func (m *Memory) snapshotLocked() map[string]model.PresenceRecord {
	return copyRecords(m.values)
}

func copyRecords(in map[string]model.PresenceRecord) map[string]model.PresenceRecord {
	out := make(map[string]model.PresenceRecord, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

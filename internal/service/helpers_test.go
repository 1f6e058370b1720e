package service

import (
	"Huddle/internal/model"
	"Huddle/internal/pkg/docstore"
	"Huddle/internal/pkg/presence"
	"context"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// fakeClock drives Now and AfterFunc by hand.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: t0}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) func() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	tm := &fakeTimer{at: c.now.Add(d), f: f}
	c.timers = append(c.timers, tm)
	return func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if tm.stopped || tm.fired {
			return false
		}
		tm.stopped = true
		return true
	}
}

// Advance moves the clock and fires every due timer in deadline order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, tm := range c.timers {
		if !tm.stopped && !tm.fired && !tm.at.After(c.now) {
			tm.fired = true
			due = append(due, tm)
		}
	}
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, tm := range due {
		tm.f()
	}
}

func (c *fakeClock) Set(at time.Time) {
	c.mu.Lock()
	c.now = at
	c.mu.Unlock()
}

func (c *fakeClock) options() Options {
	opts := DefaultOptions()
	opts.Now = c.Now
	opts.AfterFunc = c.AfterFunc
	return opts
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Emit(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) ofType(typ EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) last(typ EventType) (Event, bool) {
	events := r.ofType(typ)
	if len(events) == 0 {
		return Event{}, false
	}
	return events[len(events)-1], true
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

type staticVisibility bool

func (v staticVisibility) Visible() bool { return bool(v) }

type fixture struct {
	t        *testing.T
	ctx      context.Context
	clock    *fakeClock
	store    *docstore.MemStore
	presence *presence.Memory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := newFakeClock()
	f := &fixture{
		t:        t,
		ctx:      context.Background(),
		clock:    clock,
		store:    docstore.NewMemStore(docstore.WithClock(clock.Now)),
		presence: presence.NewMemory(),
	}
	f.set(model.UserPath("u1"), docstore.Fields{model.FieldName: "Ana", model.FieldEmail: "ana@example.com"})
	f.set(model.UserPath("u2"), docstore.Fields{model.FieldName: "Bo"})
	f.set(model.UserPath("u3"), docstore.Fields{model.FieldEmail: "cy@example.com"})
	f.set(model.RoomPath("general"), docstore.Fields{
		model.FieldName:      "general",
		model.FieldOrder:     1,
		model.FieldCreatedAt: t0.Add(-time.Hour),
	})
	f.set(model.RoomPath("random"), docstore.Fields{
		model.FieldName:      "random",
		model.FieldOrder:     2,
		model.FieldCreatedAt: t0.Add(-time.Hour),
	})
	f.set(model.RoomPath("staff"), docstore.Fields{
		model.FieldName:         "staff",
		model.FieldOrder:        3,
		model.FieldAllowedUsers: []string{"u1"},
		model.FieldCreatedAt:    t0.Add(-time.Hour),
	})
	f.store.ResetWrites()
	return f
}

func (f *fixture) set(path string, fields docstore.Fields) {
	f.t.Helper()
	if err := f.store.Set(f.ctx, path, fields, false); err != nil {
		f.t.Fatalf("seed %s: %v", path, err)
	}
}

func (f *fixture) get(path string) docstore.Document {
	f.t.Helper()
	doc, err := f.store.Get(f.ctx, path)
	if err != nil {
		f.t.Fatalf("get %s: %v", path, err)
	}
	return doc
}

// seedMessages writes n text messages one second apart, ids m0..m(n-1).
func (f *fixture) seedMessages(conversationID string, n int, author string) {
	f.t.Helper()
	for i := 0; i < n; i++ {
		at := t0.Add(-time.Hour).Add(time.Duration(i) * time.Second)
		f.set(model.MessagePath(conversationID, "m"+strconv.Itoa(i)), docstore.Fields{
			model.FieldUserID:    author,
			model.FieldUserName:  "seed",
			model.FieldText:      "message " + strconv.Itoa(i),
			model.FieldType:      string(model.KindText),
			model.FieldCreatedAt: at,
			model.FieldTimestamp: at.UnixMilli(),
		})
	}
	f.store.ResetWrites()
}

func (f *fixture) deps() Deps {
	return Deps{Store: f.store, Presence: f.presence}
}

// session starts a session for userID with its own event recorder.
func (f *fixture) session(userID string) (*Session, *recorder) {
	f.t.Helper()
	rec := &recorder{}
	s := NewSession(userID, f.deps(), rec, f.clock.options())
	if err := s.Start(f.ctx); err != nil {
		f.t.Fatalf("start session %s: %v", userID, err)
	}
	f.t.Cleanup(func() { s.Close(context.Background()) })
	return s, rec
}

func (f *fixture) roster(viewerID string, sink EventSink) RosterService {
	f.t.Helper()
	tracker := NewPresenceTracker(f.presence, sink, f.clock.options())
	roster := NewRosterService(f.store, tracker, sink)
	if err := roster.Start(f.ctx, viewerID); err != nil {
		f.t.Fatal(err)
	}
	f.t.Cleanup(roster.Stop)
	return roster
}

func messageIDs(msgs []model.Message) []string {
	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	return ids
}

package service

import (
	"Huddle/internal/model"
	"testing"
)

func newTracker(t *testing.T, f *fixture, selfID string) (PresenceTracker, *recorder) {
	t.Helper()
	rec := &recorder{}
	tracker := NewPresenceTracker(f.presence, rec, f.clock.options())
	if err := tracker.Start(f.ctx, selfID); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { tracker.Stop(f.ctx) })
	return tracker, rec
}

func TestPresenceFollowsConnection(t *testing.T) {
	f := newFixture(t)
	newTracker(t, f, "u1")
	observer, _ := newTracker(t, f, "u2")

	if observer.IsOnline("u1") {
		t.Fatal("u1 online before connecting")
	}

	f.presence.SetConnected("u1", true)
	if !observer.IsOnline("u1") {
		t.Fatal("u1 not online after connecting")
	}

	f.presence.SetConnected("u1", false)
	if observer.IsOnline("u1") {
		t.Fatal("u1 still online after the connection dropped")
	}

	f.presence.SetConnected("u1", true)
	if !observer.IsOnline("u1") {
		t.Error("u1 not online again after reconnecting")
	}
}

func TestPresenceStopCommitsOffline(t *testing.T) {
	f := newFixture(t)
	f.presence.SetConnected("u1", true)
	rec := &recorder{}
	leaving := NewPresenceTracker(f.presence, rec, f.clock.options())
	if err := leaving.Start(f.ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	observer, _ := newTracker(t, f, "u2")
	if !observer.IsOnline("u1") {
		t.Fatal("u1 not online")
	}

	leaving.Stop(f.ctx)
	if observer.IsOnline("u1") {
		t.Error("u1 still online after Stop")
	}
	if got := observer.Online(); got["u1"] {
		t.Errorf("Online() = %v", got)
	}
}

func TestPresenceMergeRosterAndListeners(t *testing.T) {
	f := newFixture(t)
	observer, rec := newTracker(t, f, "u2")
	calls := 0
	observer.OnChange(func() { calls++ })

	f.presence.SetConnected("u1", true)
	newTracker(t, f, "u1")

	if calls == 0 {
		t.Error("change listener never ran")
	}
	if _, ok := rec.last(EventPresence); !ok {
		t.Error("no presence event")
	}

	users := observer.MergeRoster([]model.User{{ID: "u1"}, {ID: "u3", IsOnline: true}})
	if !users[0].IsOnline || users[1].IsOnline {
		t.Errorf("merged = %+v", users)
	}
}

package service

import (
	"Huddle/internal/model"
	"context"
	"errors"
	"testing"
	"time"
)

func TestUnreadClearsWhenConversationOpened(t *testing.T) {
	f := newFixture(t)
	ana, _ := f.session("u1")
	bo, boEvents := f.session("u2")

	if err := bo.Open("random"); err != nil {
		t.Fatal(err)
	}
	if err := ana.Open("general"); err != nil {
		t.Fatal(err)
	}
	if _, err := ana.Send(SendRequest{Text: "hi"}); err != nil {
		t.Fatal(err)
	}

	if got := bo.Unread()["general"]; got != 1 {
		t.Fatalf("bo unread general = %d, want 1", got)
	}
	ev, ok := boEvents.last(EventUnread)
	if !ok || ev.Data.(map[string]int)["general"] != 1 {
		t.Fatalf("unread event = %+v", ev)
	}

	f.store.ResetWrites()
	if err := bo.Open("general"); err != nil {
		t.Fatal(err)
	}
	if _, ok := bo.Unread()["general"]; ok {
		t.Errorf("general still unread: %v", bo.Unread())
	}
	if got := len(readCursorWrites(f, "general", "u2")); got != 1 {
		t.Errorf("read cursor writes = %d, want 1", got)
	}
	conv := model.ConversationFromDocument(f.get(model.ConversationPath("general")))
	if conv.ReadCounts["u2"] != 1 {
		t.Errorf("readCounts = %v", conv.ReadCounts)
	}
	if got := len(readCursorWrites(f, "general", "u1")); got != 0 {
		t.Errorf("sender wrote its cursor again: %d", got)
	}
	if w := bo.Window(); len(w.Messages) != 1 || w.Messages[0].Text != "hi" {
		t.Errorf("window = %+v", w.Messages)
	}
}

func TestDirectNudgeFiresOnce(t *testing.T) {
	f := newFixture(t)
	notifier := &captureNotifier{}
	deps := f.deps()
	deps.Notifier = notifier

	ana := NewSession("u1", deps, &recorder{}, f.clock.options())
	boEvents := &recorder{}
	bo := NewSession("u2", deps, boEvents, f.clock.options())
	for _, s := range []*Session{ana, bo} {
		if err := s.Start(f.ctx); err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { s.Close(context.Background()) })
	}
	bo.SetVisibility(false)

	if err := bo.OpenDM("u1"); err != nil {
		t.Fatal(err)
	}
	if err := ana.OpenDM("u2"); err != nil {
		t.Fatal(err)
	}
	if err := ana.Nudge(); err != nil {
		t.Fatal(err)
	}

	if got := len(boEvents.ofType(EventNudge)); got != 1 {
		t.Errorf("nudge events = %d, want 1", got)
	}
	var nudges, messages int
	for _, n := range notifier.all() {
		switch n.Kind {
		case NotifyNudge:
			nudges++
		case NotifyMessage:
			messages++
		}
	}
	if nudges != 1 || messages != 0 {
		t.Errorf("notifications nudge=%d message=%d, want 1 and 0", nudges, messages)
	}
	if !bo.Shaking() || !ana.Shaking() {
		t.Error("both sides should shake")
	}
}

func TestSessionRejectsBadTargets(t *testing.T) {
	f := newFixture(t)
	bo, events := f.session("u2")

	tests := []struct {
		name string
		open func() error
		want error
	}{
		{"foreign dm", func() error { return bo.Open("u1_u3") }, ErrInvalidTarget},
		{"hidden room", func() error { return bo.Open("staff") }, ErrConversationHidden},
		{"self dm", func() error { return bo.OpenDM("u2") }, ErrInvalidTarget},
		{"empty peer", func() error { return bo.OpenDM("") }, ErrInvalidTarget},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.open(); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if bo.ConversationID() != "" {
		t.Errorf("conversation = %q, want none", bo.ConversationID())
	}
	if len(events.ofType(EventAlert)) == 0 {
		t.Error("no alert for rejected open")
	}
	if _, err := bo.Send(SendRequest{Text: "hi"}); !errors.Is(err, ErrNoActiveConversation) {
		t.Errorf("send without conversation = %v", err)
	}
}

func TestSessionSwitchDropsPreviousListeners(t *testing.T) {
	f := newFixture(t)
	f.seedMessages("general", 3, "u1")
	bo, _ := f.session("u2")

	if err := bo.Open("general"); err != nil {
		t.Fatal(err)
	}
	if err := bo.Open("random"); err != nil {
		t.Fatal(err)
	}
	f.seedMessages("general", 5, "u1")

	if got := bo.Window().Messages; len(got) != 0 {
		t.Errorf("random window shows %v", messageIDs(got))
	}
	if bo.ConversationID() != "random" {
		t.Errorf("conversation = %q", bo.ConversationID())
	}
}

func TestSessionManagerLifecycle(t *testing.T) {
	f := newFixture(t)
	m := NewSessionManager(f.deps(), f.clock.options())

	s, err := m.Open(f.ctx, "u1", &recorder{})
	if err != nil {
		t.Fatal(err)
	}
	if m.Count() != 1 {
		t.Fatalf("count = %d", m.Count())
	}
	m.SweepAll()
	m.Release(f.ctx, s)
	m.Release(f.ctx, s)
	if m.Count() != 0 {
		t.Errorf("count after release = %d", m.Count())
	}
	if err := s.Open("general"); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("open after close = %v", err)
	}
}

func TestNudgeSeenWhileOpenLeavesNoUnread(t *testing.T) {
	f := newFixture(t)
	ana, _ := f.session("u1")
	bo, _ := f.session("u2")

	if err := bo.Open("general"); err != nil {
		t.Fatal(err)
	}
	if err := ana.Open("general"); err != nil {
		t.Fatal(err)
	}
	if _, err := ana.Send(SendRequest{Text: "hi"}); err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(time.Second)
	if err := ana.Nudge(); err != nil {
		t.Fatal(err)
	}
	if !bo.Shaking() {
		t.Fatal("bo did not see the nudge")
	}

	conv := model.ConversationFromDocument(f.get(model.ConversationPath("general")))
	if conv.SeenAt("u2").Before(conv.LastMessageAt) {
		t.Errorf("lastSeen u2 = %v, lastMessageAt = %v", conv.SeenAt("u2"), conv.LastMessageAt)
	}

	if err := bo.Open("random"); err != nil {
		t.Fatal(err)
	}
	if got, ok := bo.Unread()["general"]; ok {
		t.Errorf("general unread after leaving = %d", got)
	}
}

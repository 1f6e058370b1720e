package service

import (
	"Huddle/internal/model"
	"Huddle/internal/pkg/docstore"
	"errors"
	"testing"
	"time"
)

func newTyping(t *testing.T, f *fixture, conversationID, viewerID, name string) (TypingIndicator, *recorder) {
	t.Helper()
	rec := &recorder{}
	ti := NewTypingIndicator(f.store, rec, f.clock.options())
	if err := ti.Activate(f.ctx, conversationID, viewerID, name); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ti.Teardown(f.ctx) })
	return ti, rec
}

func TestTypingFlagExpiresByAge(t *testing.T) {
	tests := []struct {
		name    string
		readAt  time.Duration
		visible bool
	}{
		{"read after 4s", 4 * time.Second, true},
		{"read after 6s", 6 * time.Second, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			reader, _ := newTyping(t, f, "general", "u2", "Bo")
			f.set(model.TypingPath("general", "u1"), docstore.Fields{
				model.FieldName:      "Ana",
				model.FieldIsTyping:  true,
				model.FieldUpdatedAt: t0,
			})

			f.clock.Set(t0.Add(tt.readAt))
			typing := reader.Typing()
			if got := len(typing) == 1 && typing[0].UserID == "u1"; got != tt.visible {
				t.Errorf("typing = %+v, want u1 visible=%v", typing, tt.visible)
			}
		})
	}
}

func TestTypingSweepEmitsExpiry(t *testing.T) {
	f := newFixture(t)
	reader, rec := newTyping(t, f, "general", "u2", "Bo")
	f.set(model.TypingPath("general", "u1"), docstore.Fields{
		model.FieldName:      "Ana",
		model.FieldIsTyping:  true,
		model.FieldUpdatedAt: t0,
	})
	ev, ok := rec.last(EventTyping)
	if !ok || len(ev.Data.([]model.Typist)) != 1 {
		t.Fatalf("typing event = %+v", ev)
	}

	f.clock.Set(t0.Add(6 * time.Second))
	reader.Sweep()
	ev, _ = rec.last(EventTyping)
	if got := ev.Data.([]model.Typist); len(got) != 0 {
		t.Errorf("after sweep typing = %+v, want empty", got)
	}
	events := len(rec.ofType(EventTyping))
	reader.Sweep()
	if len(rec.ofType(EventTyping)) != events {
		t.Error("sweep without change emitted again")
	}
}

func TestTypingReaderFiltersSelfAndCleared(t *testing.T) {
	f := newFixture(t)
	reader, _ := newTyping(t, f, "general", "u2", "Bo")
	f.set(model.TypingPath("general", "u2"), docstore.Fields{
		model.FieldName: "Bo", model.FieldIsTyping: true, model.FieldUpdatedAt: t0,
	})
	f.set(model.TypingPath("general", "u3"), docstore.Fields{
		model.FieldName: "cy", model.FieldIsTyping: false, model.FieldUpdatedAt: t0,
	})
	if got := reader.Typing(); len(got) != 0 {
		t.Errorf("typing = %+v, want empty", got)
	}
}

func TestKeystrokeIdleTimerClearsFlag(t *testing.T) {
	f := newFixture(t)
	writer, _ := newTyping(t, f, "general", "u1", "Ana")
	path := model.TypingPath("general", "u1")

	writer.Keystroke(f.ctx)
	doc := f.get(path)
	if !doc.Fields.Bool(model.FieldIsTyping) || doc.Fields.String(model.FieldName) != "Ana" {
		t.Fatalf("typing doc = %+v", doc.Fields)
	}

	f.clock.Advance(1500 * time.Millisecond)
	writer.Keystroke(f.ctx)
	f.clock.Advance(1500 * time.Millisecond)
	if _, err := f.store.Get(f.ctx, path); err != nil {
		t.Fatal("flag cleared although the idle timer was reset")
	}

	f.clock.Advance(500 * time.Millisecond)
	if _, err := f.store.Get(f.ctx, path); !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("after idle timeout err = %v, want ErrNotFound", err)
	}
}

func TestMessageSentClearsImmediately(t *testing.T) {
	f := newFixture(t)
	writer, _ := newTyping(t, f, "general", "u1", "Ana")
	path := model.TypingPath("general", "u1")

	writer.Keystroke(f.ctx)
	writer.MessageSent(f.ctx)
	if _, err := f.store.Get(f.ctx, path); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	f.store.ResetWrites()
	f.clock.Advance(3 * time.Second)
	if got := len(f.store.Writes()); got != 0 {
		t.Errorf("idle timer still wrote %d times after send", got)
	}
}

func TestTypingTeardownStopsReading(t *testing.T) {
	f := newFixture(t)
	rec := &recorder{}
	ti := NewTypingIndicator(f.store, rec, f.clock.options())
	if err := ti.Activate(f.ctx, "general", "u2", "Bo"); err != nil {
		t.Fatal(err)
	}
	ti.Teardown(f.ctx)

	f.set(model.TypingPath("general", "u1"), docstore.Fields{
		model.FieldName: "Ana", model.FieldIsTyping: true, model.FieldUpdatedAt: t0,
	})
	if got := ti.Typing(); len(got) != 0 {
		t.Errorf("typing after teardown = %+v", got)
	}
	if err := ti.SetTyping(f.ctx, true); !errors.Is(err, ErrNoActiveConversation) {
		t.Errorf("SetTyping after teardown err = %v", err)
	}
}

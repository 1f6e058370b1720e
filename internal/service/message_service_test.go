package service

import (
	"Huddle/internal/model"
	"Huddle/internal/pkg/docstore"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestValidateText(t *testing.T) {
	tests := []struct {
		name string
		text string
		want error
	}{
		{"plain", "hello", nil},
		{"blank", "   \n", ErrEmptyMessage},
		{"empty", "", ErrEmptyMessage},
		{"too many runes", strings.Repeat("é", 2001), ErrMessageTooLong},
		{"too many bytes", strings.Repeat("a", 4097), ErrMessageTooLong},
		{"at rune limit", strings.Repeat("a", 2000), nil},
		{"invalid utf8", "ok \xff", ErrMessageInvalidUTF8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateText(tt.text); !errors.Is(got, tt.want) {
				t.Errorf("ValidateText() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKindOfAttachment(t *testing.T) {
	tests := []struct {
		att  *model.Attachment
		want model.MessageKind
	}{
		{nil, model.KindText},
		{&model.Attachment{URL: "a", MimeType: "image/png"}, model.KindImage},
		{&model.Attachment{URL: "a", MimeType: "audio/ogg"}, model.KindAudio},
		{&model.Attachment{URL: "a", MimeType: "application/pdf"}, model.KindText},
	}
	for _, tt := range tests {
		if got := kindOf(tt.att); got != tt.want {
			t.Errorf("kindOf(%+v) = %s, want %s", tt.att, got, tt.want)
		}
	}
}

func TestSendUpdatesCounters(t *testing.T) {
	f := newFixture(t)
	svc := NewMessageService(f.store, f.clock.options())
	ana := model.User{ID: "u1", Name: "Ana"}

	for _, text := range []string{"one", "two"} {
		if _, err := svc.Send(f.ctx, ana, "general", SendRequest{Text: text}); err != nil {
			t.Fatal(err)
		}
	}

	conv := model.ConversationFromDocument(f.get(model.ConversationPath("general")))
	if conv.MessageCount != 2 || conv.ReadCounts["u1"] != 2 {
		t.Errorf("count = %d read = %v, want 2 and 2", conv.MessageCount, conv.ReadCounts)
	}
	if conv.LastSenderID != "u1" || conv.LastMessageText != "two" || !conv.LastMessageAt.Equal(t0) {
		t.Errorf("preview = %+v", conv)
	}
	if got := ComputeUnread(conv, "u2", ""); got != 2 {
		t.Errorf("unread for u2 = %d, want 2", got)
	}
}

func TestSendReplyAndAttachment(t *testing.T) {
	f := newFixture(t)
	svc := NewMessageService(f.store, f.clock.options())
	ana := model.User{ID: "u1", Name: "Ana"}

	quoted, err := svc.Send(f.ctx, ana, "general", SendRequest{
		Attachment: &model.Attachment{URL: "uploads/cat.png", Name: "cat.png", MimeType: "image/png"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if quoted.Kind != model.KindImage {
		t.Fatalf("kind = %s", quoted.Kind)
	}

	reply, err := svc.Send(f.ctx, model.User{ID: "u2", Name: "Bo"}, "general", SendRequest{
		Text:      "nice",
		ReplyToID: quoted.ID,
	})
	if err != nil {
		t.Fatal(err)
	}
	stored := model.MessageFromDocument("general", f.get(model.MessagePath("general", reply.ID)))
	if stored.ReplyTo == nil || stored.ReplyTo.ID != quoted.ID || stored.ReplyTo.Text != "📷 Image" {
		t.Errorf("reply snapshot = %+v", stored.ReplyTo)
	}

	_, err = svc.Send(f.ctx, ana, "general", SendRequest{Text: "x", ReplyToID: "missing"})
	if !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("reply to missing err = %v", err)
	}
}

func TestToggleReaction(t *testing.T) {
	f := newFixture(t)
	f.seedMessages("general", 1, "u1")
	svc := NewMessageService(f.store, f.clock.options())
	reactions := func() map[string]string {
		return model.MessageFromDocument("general", f.get(model.MessagePath("general", "m0"))).Reactions
	}

	steps := []struct {
		emoji string
		want  string
	}{
		{"👍", "👍"},
		{"❤️", "❤️"},
		{"❤️", ""},
	}
	for _, step := range steps {
		if err := svc.ToggleReaction(f.ctx, "u2", "general", "m0", step.emoji); err != nil {
			t.Fatal(err)
		}
		if got := reactions()["u2"]; got != step.want {
			t.Errorf("after %s reaction = %q, want %q", step.emoji, got, step.want)
		}
	}

	if err := svc.ToggleReaction(f.ctx, "u2", "general", "nope", "👍"); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("missing message err = %v", err)
	}
}

// deferredUnpinStore holds back unpin updates until flush, so the pin lands
// before the unpin of the previous message.
type deferredUnpinStore struct {
	docstore.Store
	mu      sync.Mutex
	pending []func() error
}

func (s *deferredUnpinStore) Update(ctx context.Context, path string, fields docstore.Fields) error {
	if v, ok := fields[model.FieldIsPinned]; ok && v == false {
		s.mu.Lock()
		s.pending = append(s.pending, func() error { return s.Store.Update(ctx, path, fields) })
		s.mu.Unlock()
		return nil
	}
	return s.Store.Update(ctx, path, fields)
}

func (s *deferredUnpinStore) flush() error {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()
	for _, fn := range pending {
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}

func pinnedIDs(t *testing.T, f *fixture, conversationID string) []string {
	t.Helper()
	docs, err := f.store.Query(f.ctx, docstore.Query{
		Collection: model.MessagesCollection(conversationID),
	}.WhereEq(model.FieldIsPinned, true))
	if err != nil {
		t.Fatal(err)
	}
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids
}

func TestTogglePinLeavesOnePinned(t *testing.T) {
	tests := []struct {
		name     string
		deferred bool
	}{
		{"unpin lands first", false},
		{"pin lands first", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.seedMessages("general", 3, "u1")
			wrapped := &deferredUnpinStore{Store: f.store}
			var store docstore.Store = f.store
			if tt.deferred {
				store = wrapped
			}
			svc := NewMessageService(store, f.clock.options())

			if pinned, err := svc.TogglePin(f.ctx, "general", "m0"); err != nil || !pinned {
				t.Fatalf("pin m0 = %v, %v", pinned, err)
			}
			if pinned, err := svc.TogglePin(f.ctx, "general", "m2"); err != nil || !pinned {
				t.Fatalf("pin m2 = %v, %v", pinned, err)
			}
			if tt.deferred {
				if got := pinnedIDs(t, f, "general"); len(got) != 2 {
					t.Fatalf("pinned before flush = %v, want both", got)
				}
				if err := wrapped.flush(); err != nil {
					t.Fatal(err)
				}
			}
			if got := pinnedIDs(t, f, "general"); len(got) != 1 || got[0] != "m2" {
				t.Errorf("pinned = %v, want [m2]", got)
			}
		})
	}
}

func TestTogglePinUnpins(t *testing.T) {
	f := newFixture(t)
	f.seedMessages("general", 1, "u1")
	svc := NewMessageService(f.store, f.clock.options())

	if _, err := svc.TogglePin(f.ctx, "general", "m0"); err != nil {
		t.Fatal(err)
	}
	pinned, err := svc.TogglePin(f.ctx, "general", "m0")
	if err != nil || pinned {
		t.Fatalf("second toggle = %v, %v", pinned, err)
	}
	if got := pinnedIDs(t, f, "general"); len(got) != 0 {
		t.Errorf("pinned = %v, want none", got)
	}
}

func TestEditRules(t *testing.T) {
	tests := []struct {
		name   string
		userID string
		after  time.Duration
		want   error
	}{
		{"author inside window", "u1", 10 * time.Minute, nil},
		{"author after window", "u1", 16 * time.Minute, ErrEditWindowClosed},
		{"someone else", "u2", time.Minute, ErrNotAuthor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			svc := NewMessageService(f.store, f.clock.options())
			msg, err := svc.Send(f.ctx, model.User{ID: "u1", Name: "Ana"}, "general", SendRequest{Text: "helo"})
			if err != nil {
				t.Fatal(err)
			}

			f.clock.Set(t0.Add(tt.after))
			err = svc.Edit(f.ctx, tt.userID, "general", msg.ID, "hello")
			if !errors.Is(err, tt.want) {
				t.Fatalf("Edit() = %v, want %v", err, tt.want)
			}
			stored := model.MessageFromDocument("general", f.get(model.MessagePath("general", msg.ID)))
			if edited := stored.Text == "hello" && stored.IsEdited; edited != (tt.want == nil) {
				t.Errorf("stored = %q edited=%v", stored.Text, stored.IsEdited)
			}
		})
	}
}

func TestEditRejectsNudge(t *testing.T) {
	f := newFixture(t)
	f.set(model.MessagePath("general", "n1"), docstore.Fields{
		model.FieldUserID:    "u1",
		model.FieldType:      string(model.KindNudge),
		model.FieldText:      "🔔 Nudge!",
		model.FieldCreatedAt: t0,
	})
	svc := NewMessageService(f.store, f.clock.options())
	if err := svc.Edit(f.ctx, "u1", "general", "n1", "hi"); !errors.Is(err, ErrMessageNotEditable) {
		t.Errorf("Edit() = %v", err)
	}
}

func TestDeleteIsAuthorOnly(t *testing.T) {
	f := newFixture(t)
	f.seedMessages("general", 1, "u1")
	svc := NewMessageService(f.store, f.clock.options())

	if err := svc.Delete(f.ctx, "u2", "general", "m0"); !errors.Is(err, ErrNotAuthor) {
		t.Fatalf("Delete by u2 = %v", err)
	}
	if err := svc.Delete(f.ctx, "u1", "general", "m0"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.store.Get(f.ctx, model.MessagePath("general", "m0")); !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("after delete err = %v", err)
	}
	if err := svc.Delete(f.ctx, "u1", "general", "m0"); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("second delete = %v", err)
	}
}

func TestConversationMetaCountsOnlyCountedKinds(t *testing.T) {
	tests := []struct {
		kind    model.MessageKind
		counted bool
	}{
		{model.KindText, true},
		{model.KindImage, true},
		{model.KindAudio, true},
		{model.KindNudge, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			fields := conversationMeta(model.Message{AuthorID: "u1", Kind: tt.kind, Text: "x"})
			for _, key := range []string{model.FieldMessageCount, model.ReadCountField("u1"), model.LastSeenField("u1")} {
				if _, ok := fields[key]; ok != tt.counted {
					t.Errorf("%s present = %v, want %v", key, ok, tt.counted)
				}
			}
			if fields[model.FieldLastSenderID] != "u1" || !docstore.IsServerTimestamp(fields[model.FieldLastMessageAt]) {
				t.Errorf("preview fields = %v", fields)
			}
		})
	}
}

package service

import (
	"Huddle/internal/metrics"
	"Huddle/internal/model"
	"Huddle/internal/pkg/docstore"
	"context"
	log "log/slog"
	"slices"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// TypingIndicator publishes the viewer's typing flag for the open
// conversation and reads everyone else's.
type TypingIndicator interface {
	Activate(ctx context.Context, conversationID, viewerID, viewerName string) error
	SetTyping(ctx context.Context, isTyping bool) error
	// Keystroke marks the viewer as typing and restarts the idle timer.
	Keystroke(ctx context.Context)
	// MessageSent clears the viewer's flag right away.
	MessageSent(ctx context.Context)
	Typing() []model.Typist
	// Sweep drops flags that aged out since the last snapshot.
	Sweep()
	Teardown(ctx context.Context)
}

type typingIndicatorImpl struct {
	store docstore.Store
	sink  EventSink
	opts  Options

	mu         sync.Mutex
	ctx        context.Context
	gen        uint64
	convID     string
	viewerID   string
	viewerName string
	flags      []model.TypingFlag
	last       []model.Typist
	typing     bool
	lastWrite  time.Time
	idleSeq    uint64
	stopIdle   func() bool
	cancel     func()
}

func NewTypingIndicator(store docstore.Store, sink EventSink, opts Options) TypingIndicator {
	return &typingIndicatorImpl{
		store: store,
		sink:  sink,
		opts:  opts.withDefaults(),
	}
}

func (s *typingIndicatorImpl) Activate(ctx context.Context, conversationID, viewerID, viewerName string) error {
	s.Teardown(ctx)

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.ctx = ctx
	s.convID = conversationID
	s.viewerID = viewerID
	s.viewerName = viewerName
	s.mu.Unlock()

	cancel, err := s.store.Subscribe(ctx, docstore.Query{Collection: model.TypingCollection(conversationID)},
		func(docs []docstore.Document) {
			s.onSnapshot(gen, docs)
		})
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.gen == gen {
		s.cancel, cancel = cancel, nil
	}
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

func (s *typingIndicatorImpl) onSnapshot(gen uint64, docs []docstore.Document) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		metrics.StaleSnapshotsTotal.WithLabelValues("typing").Inc()
		return
	}
	metrics.SnapshotsTotal.WithLabelValues("typing").Inc()
	flags := make([]model.TypingFlag, 0, len(docs))
	for _, doc := range docs {
		flags = append(flags, model.TypingFlagFromDocument(s.convID, doc))
	}
	s.flags = flags
	s.mu.Unlock()
	s.publish()
}

// typistsLocked applies the reader side rules: not me, flagged, and
// refreshed within the stale window.
func (s *typingIndicatorImpl) typistsLocked(now time.Time) []model.Typist {
	out := make([]model.Typist, 0, len(s.flags))
	for _, f := range s.flags {
		if f.UserID == s.viewerID || !f.IsTyping {
			continue
		}
		if !within(now, f.UpdatedAt, s.opts.Chat.TypingStale) {
			continue
		}
		out = append(out, model.Typist{UserID: f.UserID, Name: f.Name})
	}
	return out
}

func (s *typingIndicatorImpl) publish() {
	s.mu.Lock()
	typists := s.typistsLocked(s.opts.Now())
	if slices.Equal(typists, s.last) {
		s.mu.Unlock()
		return
	}
	s.last = typists
	convID := s.convID
	s.mu.Unlock()
	s.sink.Emit(Event{Type: EventTyping, ConversationID: convID, Data: typists})
}

func (s *typingIndicatorImpl) Typing() []model.Typist {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typistsLocked(s.opts.Now())
}

func (s *typingIndicatorImpl) Sweep() {
	s.mu.Lock()
	active := s.convID != ""
	s.mu.Unlock()
	if active {
		s.publish()
	}
}

func (s *typingIndicatorImpl) SetTyping(ctx context.Context, isTyping bool) error {
	s.mu.Lock()
	convID, viewerID, name := s.convID, s.viewerID, s.viewerName
	if convID == "" {
		s.mu.Unlock()
		return ErrNoActiveConversation
	}
	s.typing = isTyping
	if isTyping {
		s.lastWrite = s.opts.Now()
	}
	s.mu.Unlock()

	path := model.TypingPath(convID, viewerID)
	var err error
	if isTyping {
		err = s.store.Set(ctx, path, docstore.Fields{
			model.FieldName:      name,
			model.FieldIsTyping:  true,
			model.FieldUpdatedAt: docstore.ServerTimestamp(),
		}, false)
	} else {
		err = s.store.Delete(ctx, path)
	}
	if err != nil {
		metrics.StoreWriteErrorsTotal.WithLabelValues("typing").Inc()
		return errors.Wrap(err, "write typing flag")
	}
	return nil
}

// Keystroke refreshes the flag at most once per half idle period so a fast
// typist does not write on every key, while readers still see it well
// inside the stale window.
func (s *typingIndicatorImpl) Keystroke(ctx context.Context) {
	s.mu.Lock()
	if s.convID == "" {
		s.mu.Unlock()
		return
	}
	now := s.opts.Now()
	write := !s.typing || now.Sub(s.lastWrite) >= s.opts.Chat.TypingIdle/2
	prev := s.stopIdle
	s.stopIdle = nil
	s.idleSeq++
	seq, gen := s.idleSeq, s.gen
	s.mu.Unlock()

	if prev != nil {
		prev()
	}
	if write {
		if err := s.SetTyping(ctx, true); err != nil {
			log.WarnContext(ctx, "typing flag write failed", "err", err)
		}
	}

	stop := s.opts.AfterFunc(s.opts.Chat.TypingIdle, func() {
		s.mu.Lock()
		if s.idleSeq != seq || s.gen != gen {
			s.mu.Unlock()
			return
		}
		s.stopIdle = nil
		actx := s.ctx
		s.mu.Unlock()
		if err := s.SetTyping(actx, false); err != nil {
			log.WarnContext(actx, "typing flag clear failed", "err", err)
		}
	})
	s.mu.Lock()
	if s.idleSeq == seq {
		s.stopIdle = stop
	} else {
		stop()
	}
	s.mu.Unlock()
}

func (s *typingIndicatorImpl) MessageSent(ctx context.Context) {
	s.mu.Lock()
	s.idleSeq++
	stop := s.stopIdle
	s.stopIdle = nil
	active := s.convID != ""
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	if !active {
		return
	}
	if err := s.SetTyping(ctx, false); err != nil {
		log.WarnContext(ctx, "typing flag clear failed", "err", err)
	}
}

// Teardown leaves the conversation. The viewer's own flag is cleared best
// effort; readers drop it by age anyway.
func (s *typingIndicatorImpl) Teardown(ctx context.Context) {
	s.mu.Lock()
	s.gen++
	s.idleSeq++
	cancel, stop := s.cancel, s.stopIdle
	s.cancel, s.stopIdle = nil, nil
	convID, viewerID, wasTyping := s.convID, s.viewerID, s.typing
	hadTypists := len(s.last) > 0
	s.convID = ""
	s.flags = nil
	s.last = nil
	s.typing = false
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if stop != nil {
		stop()
	}
	if convID == "" {
		return
	}
	if wasTyping {
		if err := s.store.Delete(ctx, model.TypingPath(convID, viewerID)); err != nil {
			log.WarnContext(ctx, "typing flag clear failed", "conversation", convID, "err", err)
		}
	}
	if hadTypists {
		s.sink.Emit(Event{Type: EventTyping, ConversationID: convID, Data: []model.Typist{}})
	}
}

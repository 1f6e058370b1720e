package service

import (
	"Huddle/internal/metrics"
	"Huddle/internal/model"
	"Huddle/internal/pkg/consts"
	"Huddle/internal/pkg/docstore"
	"context"
	log "log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// NudgeSignal sends nudges and turns fresh nudges from others into local
// effects. A nudge can be observed through the user document, the
// conversation document and the message stream; every id fires once.
type NudgeSignal interface {
	Start(ctx context.Context, viewerID string)
	Send(ctx context.Context, conversationID string) (nudgeID string, err error)
	ObserveUser(u model.User)
	ObserveConversation(c model.Conversation)
	ObserveMessage(m model.Message)
	Shaking() bool
	Stop()
}

type nudgeSignalImpl struct {
	store      docstore.Store
	roster     RosterService
	sink       EventSink
	notifier   Notifier
	visibility Visibility
	opts       Options

	mu        sync.Mutex
	ctx       context.Context
	viewerID  string
	seen      map[string]time.Time
	shaking   bool
	shakeSeq  uint64
	stopShake func() bool
}

func NewNudgeSignal(store docstore.Store, roster RosterService, sink EventSink, notifier Notifier,
	visibility Visibility, opts Options) NudgeSignal {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &nudgeSignalImpl{
		store:      store,
		roster:     roster,
		sink:       sink,
		notifier:   notifier,
		visibility: visibility,
		opts:       opts.withDefaults(),
		ctx:        context.Background(),
		seen:       make(map[string]time.Time),
	}
}

func (s *nudgeSignalImpl) Start(ctx context.Context, viewerID string) {
	s.mu.Lock()
	s.ctx = ctx
	s.viewerID = viewerID
	s.mu.Unlock()
}

// Send records the nudge on the peer's user document (DM) or the room's
// conversation document, refreshes the conversation preview and appends a
// nudge message for history.
func (s *nudgeSignalImpl) Send(ctx context.Context, conversationID string) (string, error) {
	s.mu.Lock()
	me := s.viewerID
	s.mu.Unlock()

	peer, isDM := PeerOf(conversationID, me)
	if !isDM {
		if IsDMKey(conversationID) {
			return "", ErrInvalidTarget
		}
		if _, ok := s.roster.Room(conversationID); !ok {
			return "", ErrConversationHidden
		}
	}

	id := uuid.NewString()
	sender, _ := s.roster.User(me)
	msg := model.Message{
		ID:              id,
		ConversationID:  conversationID,
		AuthorID:        me,
		AuthorName:      sender.DisplayName(),
		AuthorAvatar:    sender.PhotoURL,
		Text:            model.Message{Kind: model.KindNudge}.Preview(),
		Kind:            model.KindNudge,
		ClientTimestamp: s.opts.Now().UnixMilli(),
	}
	fields := msg.Fields()
	fields[model.FieldCreatedAt] = docstore.ServerTimestamp()
	if err := s.store.Set(ctx, model.MessagePath(conversationID, id), fields, false); err != nil {
		metrics.StoreWriteErrorsTotal.WithLabelValues("nudge").Inc()
		return "", errors.Wrap(err, "append nudge message")
	}

	meta := conversationMeta(msg)
	meta[model.FieldLastNudgeAt] = docstore.ServerTimestamp()
	meta[model.FieldLastNudgeID] = id
	if !isDM {
		meta[model.FieldLastNudge] = me
	}
	if err := s.store.Set(ctx, model.ConversationPath(conversationID), meta, true); err != nil {
		metrics.StoreWriteErrorsTotal.WithLabelValues("nudge").Inc()
		return "", errors.Wrap(err, "update conversation preview")
	}

	if isDM {
		err := s.store.Set(ctx, model.UserPath(peer), docstore.Fields{
			model.FieldLastNudgeFrom: me,
			model.FieldLastNudgeAt:   docstore.ServerTimestamp(),
			model.FieldLastNudgeID:   id,
		}, true)
		if err != nil {
			metrics.StoreWriteErrorsTotal.WithLabelValues("nudge").Inc()
			return "", errors.Wrap(err, "nudge peer")
		}
	}

	metrics.NudgesTotal.WithLabelValues("sent").Inc()
	s.mu.Lock()
	s.seen[id] = s.opts.Now()
	s.mu.Unlock()
	s.shake(me)
	return id, nil
}

// ObserveUser handles nudge fields on the viewer's own user document.
func (s *nudgeSignalImpl) ObserveUser(u model.User) {
	if u.LastNudgeFrom == "" {
		return
	}
	s.mu.Lock()
	me := s.viewerID
	s.mu.Unlock()
	if u.ID != me {
		return
	}
	s.receive(nudgeKey(u.LastNudgeID, u.LastNudgeFrom, u.LastNudgeAt), u.LastNudgeFrom,
		DMKey(me, u.LastNudgeFrom), u.LastNudgeAt)
}

func (s *nudgeSignalImpl) ObserveConversation(c model.Conversation) {
	if c.LastNudge == "" {
		return
	}
	s.receive(nudgeKey(c.LastNudgeID, c.LastNudge, c.LastNudgeAt), c.LastNudge, c.ID, c.LastNudgeAt)
}

func (s *nudgeSignalImpl) ObserveMessage(m model.Message) {
	if m.Kind != model.KindNudge {
		return
	}
	at := m.CreatedAt
	if at.IsZero() {
		at = time.UnixMilli(m.ClientTimestamp)
	}
	s.receive(m.ID, m.AuthorID, m.ConversationID, at)
}

// nudgeKey falls back to sender and time for documents written without an id.
func nudgeKey(id, from string, at time.Time) string {
	if id != "" {
		return id
	}
	return from + "@" + strconv.FormatInt(at.UnixMilli(), 10)
}

func (s *nudgeSignalImpl) receive(key, fromID, conversationID string, at time.Time) {
	now := s.opts.Now()
	if !within(now, at, s.opts.Chat.NudgeFreshness) {
		return
	}

	s.mu.Lock()
	if fromID == s.viewerID {
		s.mu.Unlock()
		return
	}
	if _, dup := s.seen[key]; dup {
		s.mu.Unlock()
		metrics.NudgesTotal.WithLabelValues("duplicate").Inc()
		return
	}
	s.seen[key] = now
	for k, t := range s.seen {
		if now.Sub(t) > 2*s.opts.Chat.NudgeFreshness {
			delete(s.seen, k)
		}
	}
	me, ctx := s.viewerID, s.ctx
	s.mu.Unlock()

	metrics.NudgesTotal.WithLabelValues("received").Inc()
	name := s.roster.DisplayName(fromID)
	if name == "" {
		name = fromID
	}
	log.InfoContext(ctx, "nudge received", "from", fromID, "conversation", conversationID)

	s.sink.Emit(Event{Type: EventNudge, ConversationID: conversationID, Data: NudgeData{
		FromID:   fromID,
		FromName: name,
		NudgeID:  key,
	}})
	s.sink.Emit(Event{Type: EventVibrate, ConversationID: conversationID, Data: NudgeVibration})
	s.sink.Emit(Event{Type: EventSound, ConversationID: conversationID, Data: consts.NudgeSound})
	s.shake(fromID)

	if s.visibility != nil && s.visibility.Visible() {
		return
	}
	notify(ctx, s.sink, s.notifier, Notification{
		Kind:           NotifyNudge,
		RecipientID:    me,
		ConversationID: conversationID,
		SenderID:       fromID,
		Title:          name,
		Body:           model.Message{Kind: model.KindNudge}.Preview(),
		At:             at,
	})
}

// shake turns the shake state on and schedules it off. A newer shake
// extends the previous one.
func (s *nudgeSignalImpl) shake(fromID string) {
	s.mu.Lock()
	prev := s.stopShake
	s.stopShake = nil
	s.shakeSeq++
	seq := s.shakeSeq
	s.shaking = true
	s.mu.Unlock()

	if prev != nil {
		prev()
	}
	stop := s.opts.AfterFunc(s.opts.Chat.ShakeDuration, func() {
		s.mu.Lock()
		if s.shakeSeq != seq {
			s.mu.Unlock()
			return
		}
		s.shaking = false
		s.stopShake = nil
		s.mu.Unlock()
		s.sink.Emit(Event{Type: EventShake, Data: ShakeData{Active: false}})
	})
	s.mu.Lock()
	if s.shakeSeq == seq {
		s.stopShake = stop
	}
	s.mu.Unlock()

	s.sink.Emit(Event{Type: EventShake, Data: ShakeData{Active: true, FromID: fromID}})
}

func (s *nudgeSignalImpl) Shaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shaking
}

func (s *nudgeSignalImpl) Stop() {
	s.mu.Lock()
	s.shakeSeq++
	s.shaking = false
	stop := s.stopShake
	s.stopShake = nil
	s.mu.Unlock()
	if stop != nil {
		stop()
	}
}

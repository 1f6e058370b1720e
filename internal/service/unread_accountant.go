package service

import (
	"Huddle/internal/metrics"
	"Huddle/internal/model"
	"Huddle/internal/pkg/docstore"
	"context"
	"maps"
	"sync"
	"time"
)

// UnreadAccountant derives the per conversation unread counts of one viewer
// and raises local notifications for fresh messages while the page is hidden.
type UnreadAccountant interface {
	Start(ctx context.Context, viewerID string) error
	// Unread maps conversation id to a positive count. Read conversations are absent.
	Unread() map[string]int
	SetOpen(conversationID string)
	SetRooms(rooms []model.Room)
	// OnRoomNudge receives room conversations that carry nudge fields.
	OnRoomNudge(fn func(c model.Conversation))
	Stop()
}

// ComputeUnread is the unread count of c for viewerID while openID is open.
// The message counter wins when it shows unread messages. Otherwise a last
// message newer than the viewer's last visit counts as exactly one, since
// the real number cannot be known without the counter.
func ComputeUnread(c model.Conversation, viewerID, openID string) int {
	if c.ID == openID || c.LastSenderID == viewerID {
		return 0
	}
	total, read := c.MessageCount, c.ReadCount(viewerID)
	if total > read {
		return int(total - read)
	}
	if !c.LastMessageAt.IsZero() && c.LastMessageAt.After(c.SeenAt(viewerID)) {
		return 1
	}
	return 0
}

type unreadAccountantImpl struct {
	store      docstore.Store
	roster     RosterService
	sink       EventSink
	notifier   Notifier
	visibility Visibility
	opts       Options

	mu       sync.Mutex
	ctx      context.Context
	viewerID string
	openID   string
	rooms    map[string]model.Room
	convs    map[string]model.Conversation
	unread   map[string]int
	emitted  bool
	notified map[string]time.Time
	nudgeFns []func(model.Conversation)
	cancel   func()
	stopped  bool
}

func NewUnreadAccountant(store docstore.Store, roster RosterService, sink EventSink, notifier Notifier,
	visibility Visibility, opts Options) UnreadAccountant {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &unreadAccountantImpl{
		store:      store,
		roster:     roster,
		sink:       sink,
		notifier:   notifier,
		visibility: visibility,
		opts:       opts.withDefaults(),
		rooms:      make(map[string]model.Room),
		convs:      make(map[string]model.Conversation),
		unread:     make(map[string]int),
		notified:   make(map[string]time.Time),
	}
}

func (s *unreadAccountantImpl) Start(ctx context.Context, viewerID string) error {
	s.mu.Lock()
	s.ctx = ctx
	s.viewerID = viewerID
	s.mu.Unlock()

	cancel, err := s.store.Subscribe(ctx, docstore.Query{Collection: model.ConversationsCollection}, s.onSnapshot)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	return nil
}

func (s *unreadAccountantImpl) onSnapshot(docs []docstore.Document) {
	metrics.SnapshotsTotal.WithLabelValues("conversations").Inc()
	now := s.opts.Now()

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		metrics.StaleSnapshotsTotal.WithLabelValues("conversations").Inc()
		return
	}
	convs := make(map[string]model.Conversation, len(docs))
	for _, doc := range docs {
		c := model.ConversationFromDocument(doc)
		convs[c.ID] = c
	}
	s.convs = convs

	var (
		pending []Notification
		nudges  []model.Conversation
	)
	for _, c := range convs {
		if !s.visibleLocked(c.ID) {
			continue
		}
		if !IsDMKey(c.ID) && c.LastNudge != "" {
			nudges = append(nudges, c)
		}
		if n, ok := s.notificationLocked(c, now); ok {
			pending = append(pending, n)
		}
	}
	unread, changed := s.recomputeLocked()
	nudgeFns := append([]func(model.Conversation){}, s.nudgeFns...)
	ctx := s.ctx
	s.mu.Unlock()

	if changed {
		s.sink.Emit(Event{Type: EventUnread, Data: unread})
	}
	for _, c := range nudges {
		for _, fn := range nudgeFns {
			fn(c)
		}
	}
	for _, n := range pending {
		notify(ctx, s.sink, s.notifier, n)
	}
}

// notificationLocked decides whether c is a fresh message from someone else
// that the hidden page should be told about. Each (conversation,
// lastMessageAt) pair fires at most once.
func (s *unreadAccountantImpl) notificationLocked(c model.Conversation, now time.Time) (Notification, bool) {
	if c.LastSenderID == "" || c.LastSenderID == s.viewerID {
		return Notification{}, false
	}
	if !within(now, c.LastMessageAt, s.opts.Chat.NotificationFreshness) {
		return Notification{}, false
	}
	// nudges raise their own notification
	if c.LastNudgeID != "" && c.LastNudgeAt.Equal(c.LastMessageAt) {
		return Notification{}, false
	}
	if last, ok := s.notified[c.ID]; ok && last.Equal(c.LastMessageAt) {
		return Notification{}, false
	}
	s.notified[c.ID] = c.LastMessageAt
	if s.visibility != nil && s.visibility.Visible() {
		return Notification{}, false
	}

	sender := s.roster.DisplayName(c.LastSenderID)
	if sender == "" {
		sender = c.LastSenderID
	}
	title := sender
	if room, ok := s.rooms[c.ID]; ok {
		title = "#" + room.Name + " - " + sender
	}
	return Notification{
		Kind:           NotifyMessage,
		RecipientID:    s.viewerID,
		ConversationID: c.ID,
		SenderID:       c.LastSenderID,
		Title:          title,
		Body:           truncate(c.LastMessageText, s.opts.Chat.PreviewLength),
		At:             c.LastMessageAt,
	}, true
}

func (s *unreadAccountantImpl) visibleLocked(conversationID string) bool {
	if IsDMKey(conversationID) {
		_, ok := PeerOf(conversationID, s.viewerID)
		return ok
	}
	_, ok := s.rooms[conversationID]
	return ok
}

func (s *unreadAccountantImpl) recomputeLocked() (map[string]int, bool) {
	next := make(map[string]int)
	for id, c := range s.convs {
		if !s.visibleLocked(id) {
			continue
		}
		if n := ComputeUnread(c, s.viewerID, s.openID); n > 0 {
			next[id] = n
		}
	}
	changed := !s.emitted || !maps.Equal(next, s.unread)
	s.unread = next
	s.emitted = true
	return maps.Clone(next), changed
}

func (s *unreadAccountantImpl) refresh() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	unread, changed := s.recomputeLocked()
	s.mu.Unlock()
	if changed {
		s.sink.Emit(Event{Type: EventUnread, Data: unread})
	}
}

func (s *unreadAccountantImpl) Unread() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.unread)
}

func (s *unreadAccountantImpl) SetOpen(conversationID string) {
	s.mu.Lock()
	s.openID = conversationID
	s.mu.Unlock()
	s.refresh()
}

func (s *unreadAccountantImpl) SetRooms(rooms []model.Room) {
	next := make(map[string]model.Room, len(rooms))
	for _, r := range rooms {
		next[r.ID] = r
	}
	s.mu.Lock()
	s.rooms = next
	s.mu.Unlock()
	s.refresh()
}

func (s *unreadAccountantImpl) OnRoomNudge(fn func(model.Conversation)) {
	s.mu.Lock()
	s.nudgeFns = append(s.nudgeFns, fn)
	s.mu.Unlock()
}

func (s *unreadAccountantImpl) Stop() {
	s.mu.Lock()
	s.stopped = true
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

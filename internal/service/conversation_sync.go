package service

import (
	"Huddle/internal/metrics"
	"Huddle/internal/model"
	"Huddle/internal/pkg/docstore"
	"context"
	"errors"
	log "log/slog"
	"strings"
	"sync"
	"time"
)

// AttachmentResolver turns a stored attachment reference into a link the
// browser can fetch.
type AttachmentResolver interface {
	ResolveAttachment(ctx context.Context, ref string) (string, error)
}

// ConversationSync keeps the message window of the open conversation.
type ConversationSync interface {
	// Activate tears down the previous conversation and starts syncing conversationID.
	Activate(ctx context.Context, conversationID, viewerID string) error
	// LoadMore grows the window by one step and re-subscribes.
	LoadMore(ctx context.Context) error
	SetFilter(query string)
	Window() MessageWindow
	Pinned() (model.Message, bool)
	PeerLastSeen() time.Time
	ConversationID() string
	// OnNudgeMessage receives the newest message when it is a nudge.
	OnNudgeMessage(fn func(m model.Message))
	Teardown()
}

type conversationSyncImpl struct {
	store    docstore.Store
	roster   RosterService
	resolver AttachmentResolver
	sink     EventSink
	opts     Options

	mu             sync.Mutex
	ctx            context.Context
	cancelCtx      context.CancelFunc
	gen            uint64
	msgSeq         uint64
	convID         string
	viewerID       string
	windowSize     int
	messages       []model.Message
	pinned         *model.Message
	filter         string
	newestID       string
	anchorPending  bool
	peerLastSeen   time.Time
	lastMarked     int64
	lastSeenMarked time.Time
	cancelMessages func()
	cancelMeta     func()
	nudgeFns       []func(model.Message)
}

func NewConversationSync(store docstore.Store, roster RosterService, resolver AttachmentResolver,
	sink EventSink, opts Options) ConversationSync {
	opts = opts.withDefaults()
	return &conversationSyncImpl{
		store:      store,
		roster:     roster,
		resolver:   resolver,
		sink:       sink,
		opts:       opts,
		windowSize: opts.Chat.WindowSize,
	}
}

func (s *conversationSyncImpl) Activate(ctx context.Context, conversationID, viewerID string) error {
	s.Teardown()

	actx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.ctx = actx
	s.cancelCtx = cancel
	s.convID = conversationID
	s.viewerID = viewerID
	s.windowSize = s.opts.Chat.WindowSize
	s.mu.Unlock()

	s.sink.Emit(Event{Type: EventPinned, ConversationID: conversationID})

	if err := s.subscribeMessages(actx, gen); err != nil {
		s.Teardown()
		return err
	}
	cancelMeta, err := s.store.Watch(actx, model.ConversationPath(conversationID), func(doc docstore.Document, exists bool) {
		s.onMeta(gen, doc, exists)
	})
	if err != nil {
		s.Teardown()
		return err
	}
	s.mu.Lock()
	if s.gen == gen {
		s.cancelMeta = cancelMeta
		cancelMeta = nil
	}
	s.mu.Unlock()
	if cancelMeta != nil {
		cancelMeta()
	}

	// the window does not wait on the read cursor
	s.markRead(actx, gen)
	return nil
}

// markRead moves the viewer's read cursor to the current message count.
// Failures only cost a stale badge, so they are logged and dropped.
func (s *conversationSyncImpl) markRead(ctx context.Context, gen uint64) {
	s.mu.Lock()
	convID, viewerID := s.convID, s.viewerID
	s.mu.Unlock()

	doc, err := s.store.Get(ctx, model.ConversationPath(convID))
	if errors.Is(err, docstore.ErrNotFound) {
		return
	}
	if err != nil {
		log.WarnContext(ctx, "read conversation metadata failed", "conversation", convID, "err", err)
		return
	}
	c := model.ConversationFromDocument(doc)
	if c.MessageCount <= c.ReadCount(viewerID) {
		return
	}

	s.mu.Lock()
	if s.gen != gen || c.MessageCount <= s.lastMarked {
		s.mu.Unlock()
		return
	}
	s.lastMarked = c.MessageCount
	s.lastSeenMarked = c.LastMessageAt
	s.mu.Unlock()
	s.writeReadCursor(ctx, convID, viewerID, c.MessageCount)
}

func (s *conversationSyncImpl) writeReadCursor(ctx context.Context, convID, viewerID string, count int64) {
	metrics.MarkReadWritesTotal.Inc()
	err := s.store.Set(ctx, model.ConversationPath(convID), docstore.Fields{
		model.ReadCountField(viewerID): count,
		model.LastSeenField(viewerID):  docstore.ServerTimestamp(),
	}, true)
	if err != nil {
		metrics.StoreWriteErrorsTotal.WithLabelValues("mark_read").Inc()
		log.WarnContext(ctx, "mark conversation read failed", "conversation", convID, "err", err)
	}
}

func (s *conversationSyncImpl) subscribeMessages(ctx context.Context, gen uint64) error {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return nil
	}
	s.msgSeq++
	seq := s.msgSeq
	q := docstore.Query{
		Collection: model.MessagesCollection(s.convID),
		OrderBy:    model.FieldCreatedAt,
		Desc:       true,
		Limit:      s.windowSize,
	}
	s.mu.Unlock()

	cancel, err := s.store.Subscribe(ctx, q, func(docs []docstore.Document) {
		s.onMessages(gen, seq, docs)
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	var prev func()
	if s.gen == gen && s.msgSeq == seq {
		prev, s.cancelMessages = s.cancelMessages, cancel
		cancel = nil
	}
	s.mu.Unlock()
	if prev != nil {
		prev()
	}
	if cancel != nil {
		cancel()
	}
	return nil
}

func (s *conversationSyncImpl) onMessages(gen, seq uint64, docs []docstore.Document) {
	s.mu.Lock()
	if s.gen != gen || s.msgSeq != seq {
		s.mu.Unlock()
		metrics.StaleSnapshotsTotal.WithLabelValues("messages").Inc()
		return
	}
	metrics.SnapshotsTotal.WithLabelValues("messages").Inc()

	// the query runs newest first so the limit keeps the latest messages
	msgs := make([]model.Message, len(docs))
	for i, doc := range docs {
		msgs[len(docs)-1-i] = model.MessageFromDocument(s.convID, doc)
	}
	s.messages = msgs

	pinned, pinnedCount := pickPinned(msgs)
	prevPinned := s.pinned
	s.pinned = pinned
	pinnedChanged := !samePinned(prevPinned, pinned)

	var newest *model.Message
	newestID := ""
	if len(msgs) > 0 {
		newest = &msgs[len(msgs)-1]
		newestID = newest.ID
	}
	scroll := newestID != s.newestID && s.filter == ""
	s.newestID = newestID
	anchor := s.anchorPending
	s.anchorPending = false

	var nudgeFns []func(model.Message)
	if newest != nil && newest.Kind == model.KindNudge {
		nudgeFns = append(nudgeFns, s.nudgeFns...)
	}
	convID, ctx := s.convID, s.ctx
	window := s.windowLocked()
	s.mu.Unlock()

	if pinnedCount > 1 {
		metrics.PinAnomaliesTotal.Inc()
		log.WarnContext(ctx, "more than one pinned message", "conversation", convID, "count", pinnedCount, "shown", pinned.ID)
	}

	window.ScrollToEnd = scroll
	window.PreserveAnchor = anchor
	window.Messages = s.render(ctx, window.Messages)
	s.sink.Emit(Event{Type: EventMessages, ConversationID: convID, Data: window})
	if pinnedChanged {
		var data any
		if pinned != nil {
			data = s.render(ctx, []model.Message{*pinned})[0]
		}
		s.sink.Emit(Event{Type: EventPinned, ConversationID: convID, Data: data})
	}
	for _, fn := range nudgeFns {
		fn(*newest)
	}
}

// pickPinned returns the most recent pinned message and how many were pinned.
func pickPinned(msgs []model.Message) (*model.Message, int) {
	var (
		pinned *model.Message
		count  int
	)
	for i := range msgs {
		if !msgs[i].IsPinned {
			continue
		}
		count++
		if pinned == nil || pinned.Less(msgs[i]) {
			m := msgs[i]
			pinned = &m
		}
	}
	return pinned, count
}

func samePinned(a, b *model.Message) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID && a.Text == b.Text && a.IsEdited == b.IsEdited
}

func (s *conversationSyncImpl) onMeta(gen uint64, doc docstore.Document, exists bool) {
	if !exists {
		return
	}
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		metrics.StaleSnapshotsTotal.WithLabelValues("meta").Inc()
		return
	}
	metrics.SnapshotsTotal.WithLabelValues("meta").Inc()
	c := model.ConversationFromDocument(doc)
	convID, viewerID, ctx := s.convID, s.viewerID, s.ctx

	var receipts *Receipts
	if peer, ok := PeerOf(convID, viewerID); ok {
		seen := c.SeenAt(peer)
		if !seen.Equal(s.peerLastSeen) {
			s.peerLastSeen = seen
			receipts = &Receipts{PeerID: peer, PeerLastSeen: seen}
		}
	}

	// the viewer is reading, keep the cursor at the head
	markTo := int64(0)
	if c.MessageCount > c.ReadCount(viewerID) && c.MessageCount > s.lastMarked {
		s.lastMarked = c.MessageCount
		s.lastSeenMarked = c.LastMessageAt
		markTo = c.MessageCount
	}
	// nudges move lastMessageAt without the counter, so lastSeen follows it
	// on its own or the timestamp fallback counts it after leaving
	touchSeen := markTo == 0 && c.LastSenderID != viewerID &&
		c.LastMessageAt.After(c.SeenAt(viewerID)) && c.LastMessageAt.After(s.lastSeenMarked)
	if touchSeen {
		s.lastSeenMarked = c.LastMessageAt
	}
	s.mu.Unlock()

	if receipts != nil {
		s.sink.Emit(Event{Type: EventReceipts, ConversationID: convID, Data: *receipts})
	}
	if markTo > 0 {
		s.writeReadCursor(ctx, convID, viewerID, markTo)
	}
	if touchSeen {
		s.writeLastSeen(ctx, convID, viewerID)
	}
}

func (s *conversationSyncImpl) writeLastSeen(ctx context.Context, convID, viewerID string) {
	err := s.store.Set(ctx, model.ConversationPath(convID), docstore.Fields{
		model.LastSeenField(viewerID): docstore.ServerTimestamp(),
	}, true)
	if err != nil {
		metrics.StoreWriteErrorsTotal.WithLabelValues("mark_seen").Inc()
		log.WarnContext(ctx, "mark conversation seen failed", "conversation", convID, "err", err)
	}
}

func (s *conversationSyncImpl) LoadMore(ctx context.Context) error {
	s.mu.Lock()
	if s.convID == "" {
		s.mu.Unlock()
		return ErrNoActiveConversation
	}
	s.windowSize += s.opts.Chat.WindowStep
	s.anchorPending = true
	gen, actx := s.gen, s.ctx
	s.mu.Unlock()

	if err := s.subscribeMessages(actx, gen); err != nil {
		log.ErrorContext(ctx, "resubscribe messages failed", "err", err)
		return err
	}
	return nil
}

func (s *conversationSyncImpl) SetFilter(query string) {
	s.mu.Lock()
	s.filter = strings.TrimSpace(query)
	convID, ctx := s.convID, s.ctx
	window := s.windowLocked()
	s.mu.Unlock()
	if convID == "" {
		return
	}
	window.Messages = s.render(ctx, window.Messages)
	s.sink.Emit(Event{Type: EventMessages, ConversationID: convID, Data: window})
}

func (s *conversationSyncImpl) windowLocked() MessageWindow {
	msgs := s.messages
	if s.filter != "" {
		needle := strings.ToLower(s.filter)
		msgs = make([]model.Message, 0, len(s.messages))
		for _, m := range s.messages {
			if strings.Contains(strings.ToLower(m.Text), needle) ||
				strings.Contains(strings.ToLower(s.authorName(m)), needle) {
				msgs = append(msgs, m)
			}
		}
	} else {
		msgs = append([]model.Message(nil), msgs...)
	}
	return MessageWindow{
		Messages:   msgs,
		WindowSize: s.windowSize,
		HasMore:    len(s.messages) >= s.windowSize,
		Filter:     s.filter,
	}
}

// authorName prefers the live profile and falls back to the snapshot taken at send time.
func (s *conversationSyncImpl) authorName(m model.Message) string {
	if s.roster != nil {
		if name := s.roster.DisplayName(m.AuthorID); name != "" {
			return name
		}
	}
	return m.AuthorName
}

func (s *conversationSyncImpl) render(ctx context.Context, msgs []model.Message) []model.Message {
	for i := range msgs {
		msgs[i].AuthorName = s.authorName(msgs[i])
		if msgs[i].Attachment == nil || s.resolver == nil {
			continue
		}
		url, err := s.resolver.ResolveAttachment(ctx, msgs[i].Attachment.URL)
		if err != nil {
			log.WarnContext(ctx, "resolve attachment failed", "message", msgs[i].ID, "err", err)
			continue
		}
		att := *msgs[i].Attachment
		att.URL = url
		msgs[i].Attachment = &att
	}
	return msgs
}

func (s *conversationSyncImpl) Window() MessageWindow {
	s.mu.Lock()
	window := s.windowLocked()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	window.Messages = s.render(ctx, window.Messages)
	return window
}

func (s *conversationSyncImpl) Pinned() (model.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pinned == nil {
		return model.Message{}, false
	}
	return *s.pinned, true
}

func (s *conversationSyncImpl) PeerLastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerLastSeen
}

func (s *conversationSyncImpl) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.convID
}

func (s *conversationSyncImpl) OnNudgeMessage(fn func(model.Message)) {
	s.mu.Lock()
	s.nudgeFns = append(s.nudgeFns, fn)
	s.mu.Unlock()
}

// Teardown cancels every listener of the current conversation. Callbacks
// already in flight see a newer generation and do nothing.
func (s *conversationSyncImpl) Teardown() {
	s.mu.Lock()
	s.gen++
	cancels := []func(){s.cancelMessages, s.cancelMeta}
	cancelCtx := s.cancelCtx
	s.cancelMessages, s.cancelMeta, s.cancelCtx = nil, nil, nil
	s.convID = ""
	s.messages = nil
	s.pinned = nil
	s.filter = ""
	s.newestID = ""
	s.anchorPending = false
	s.peerLastSeen = time.Time{}
	s.lastMarked = 0
	s.lastSeenMarked = time.Time{}
	s.windowSize = s.opts.Chat.WindowSize
	s.mu.Unlock()

	for _, cancel := range cancels {
		if cancel != nil {
			cancel()
		}
	}
	if cancelCtx != nil {
		cancelCtx()
	}
}

package service

import (
	"Huddle/internal/metrics"
	"Huddle/internal/model"
	"Huddle/internal/pkg/docstore"
	"Huddle/internal/pkg/presence"
	"context"
	log "log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Deps are the collaborators shared by every session.
type Deps struct {
	Store       docstore.Store
	Presence    presence.Backend
	Notifier    Notifier
	Attachments AttachmentResolver
	Messages    MessageService
}

// Session is the chat core of one connected viewer. It owns the session
// scoped subscriptions (presence, roster, unread) and the conversation
// scoped ones (messages, typing) of the open conversation.
type Session struct {
	userID string
	sink   EventSink
	opts   Options

	presence PresenceTracker
	roster   RosterService
	unread   UnreadAccountant
	convSync ConversationSync
	typing   TypingIndicator
	nudge    NudgeSignal
	messages MessageService

	visible atomic.Bool

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	closed  bool
	openID  string
}

func NewSession(userID string, deps Deps, sink EventSink, opts Options) *Session {
	opts = opts.withDefaults()
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	if deps.Messages == nil {
		deps.Messages = NewMessageService(deps.Store, opts)
	}

	s := &Session{
		userID:   userID,
		sink:     sink,
		opts:     opts,
		messages: deps.Messages,
	}
	s.visible.Store(true)

	s.presence = NewPresenceTracker(deps.Presence, sink, opts)
	s.roster = NewRosterService(deps.Store, s.presence, sink)
	s.unread = NewUnreadAccountant(deps.Store, s.roster, sink, deps.Notifier, s, opts)
	s.nudge = NewNudgeSignal(deps.Store, s.roster, sink, deps.Notifier, s, opts)
	s.convSync = NewConversationSync(deps.Store, s.roster, deps.Attachments, sink, opts)
	s.typing = NewTypingIndicator(deps.Store, sink, opts)

	s.roster.OnRooms(s.unread.SetRooms)
	s.roster.OnSelf(s.nudge.ObserveUser)
	s.unread.OnRoomNudge(s.nudge.ObserveConversation)
	s.convSync.OnNudgeMessage(s.nudge.ObserveMessage)
	return s
}

func (s *Session) UserID() string { return s.userID }

// Visible reports whether the viewer's page is focused and visible.
func (s *Session) Visible() bool { return s.visible.Load() }

func (s *Session) SetVisibility(visible bool) { s.visible.Store(visible) }

// Start subscribes the session scoped streams.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.started {
		s.mu.Unlock()
		return ErrSessionAlreadyStarted
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	sctx := s.ctx
	s.mu.Unlock()

	s.nudge.Start(sctx, s.userID)
	if err := s.presence.Start(sctx, s.userID); err != nil {
		return s.fail(sctx, "", "start presence", err)
	}
	if err := s.roster.Start(sctx, s.userID); err != nil {
		return s.fail(sctx, "", "start roster", err)
	}
	if err := s.unread.Start(sctx, s.userID); err != nil {
		return s.fail(sctx, "", "start unread", err)
	}
	log.InfoContext(sctx, "session started", "user", s.userID)
	return nil
}

func (s *Session) state() (context.Context, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, "", ErrSessionClosed
	}
	if !s.started {
		return nil, "", ErrNoActiveConversation
	}
	return s.ctx, s.openID, nil
}

// Open switches the active conversation. Listeners of the previous one are
// cancelled before the new ones are created.
func (s *Session) Open(conversationID string) error {
	ctx, _, err := s.state()
	if err != nil {
		return err
	}
	if IsDMKey(conversationID) {
		if _, ok := PeerOf(conversationID, s.userID); !ok {
			return s.fail(ctx, conversationID, "open", ErrInvalidTarget)
		}
	} else if _, ok := s.roster.Room(conversationID); !ok {
		return s.fail(ctx, conversationID, "open", ErrConversationHidden)
	}

	s.typing.Teardown(ctx)
	s.convSync.Teardown()

	s.mu.Lock()
	s.openID = conversationID
	s.mu.Unlock()
	s.unread.SetOpen(conversationID)

	if err := s.convSync.Activate(ctx, conversationID, s.userID); err != nil {
		return s.fail(ctx, conversationID, "open", err)
	}
	if err := s.typing.Activate(ctx, conversationID, s.userID, s.self().DisplayName()); err != nil {
		return s.fail(ctx, conversationID, "open", err)
	}
	return nil
}

func (s *Session) OpenDM(peerID string) error {
	if peerID == "" || peerID == s.userID {
		return ErrInvalidTarget
	}
	return s.Open(DMKey(s.userID, peerID))
}

func (s *Session) self() model.User {
	if u, ok := s.roster.User(s.userID); ok {
		return u
	}
	return model.User{ID: s.userID}
}

func (s *Session) active() (context.Context, string, error) {
	ctx, openID, err := s.state()
	if err != nil {
		return nil, "", err
	}
	if openID == "" {
		return nil, "", ErrNoActiveConversation
	}
	return ctx, openID, nil
}

func (s *Session) Keystroke() error {
	ctx, _, err := s.active()
	if err != nil {
		return err
	}
	s.typing.Keystroke(ctx)
	return nil
}

func (s *Session) Send(req SendRequest) (model.Message, error) {
	ctx, convID, err := s.active()
	if err != nil {
		return model.Message{}, err
	}
	s.typing.MessageSent(ctx)
	msg, err := s.messages.Send(ctx, s.self(), convID, req)
	if err != nil {
		return msg, s.fail(ctx, convID, "send", err)
	}
	return msg, nil
}

func (s *Session) Nudge() error {
	ctx, convID, err := s.active()
	if err != nil {
		return err
	}
	if _, err := s.nudge.Send(ctx, convID); err != nil {
		return s.fail(ctx, convID, "nudge", err)
	}
	return nil
}

func (s *Session) LoadMore() error {
	ctx, convID, err := s.active()
	if err != nil {
		return err
	}
	if err := s.convSync.LoadMore(ctx); err != nil {
		return s.fail(ctx, convID, "load more", err)
	}
	return nil
}

func (s *Session) SetFilter(query string) error {
	if _, _, err := s.active(); err != nil {
		return err
	}
	s.convSync.SetFilter(query)
	return nil
}

func (s *Session) React(messageID, emoji string) error {
	ctx, convID, err := s.active()
	if err != nil {
		return err
	}
	if err := s.messages.ToggleReaction(ctx, s.userID, convID, messageID, emoji); err != nil {
		return s.fail(ctx, convID, "react", err)
	}
	return nil
}

func (s *Session) Pin(messageID string) (bool, error) {
	ctx, convID, err := s.active()
	if err != nil {
		return false, err
	}
	pinned, err := s.messages.TogglePin(ctx, convID, messageID)
	if err != nil {
		return false, s.fail(ctx, convID, "pin", err)
	}
	return pinned, nil
}

func (s *Session) Edit(messageID, text string) error {
	ctx, convID, err := s.active()
	if err != nil {
		return err
	}
	if err := s.messages.Edit(ctx, s.userID, convID, messageID, text); err != nil {
		return s.fail(ctx, convID, "edit", err)
	}
	return nil
}

func (s *Session) Delete(messageID string) error {
	ctx, convID, err := s.active()
	if err != nil {
		return err
	}
	if err := s.messages.Delete(ctx, s.userID, convID, messageID); err != nil {
		return s.fail(ctx, convID, "delete", err)
	}
	return nil
}

// Sweep re-evaluates time based state without a new snapshot.
func (s *Session) Sweep() {
	s.typing.Sweep()
}

func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openID
}

func (s *Session) Unread() map[string]int { return s.unread.Unread() }
func (s *Session) Window() MessageWindow { return s.convSync.Window() }
func (s *Session) Pinned() (model.Message, bool) { return s.convSync.Pinned() }
func (s *Session) Typing() []model.Typist { return s.typing.Typing() }
func (s *Session) Online() map[string]bool { return s.presence.Online() }
func (s *Session) Shaking() bool { return s.nudge.Shaking() }

// Close tears everything down and commits the viewer offline.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cancel := s.cancel
	s.mu.Unlock()

	s.typing.Teardown(ctx)
	s.convSync.Teardown()
	s.unread.Stop()
	s.roster.Stop()
	s.nudge.Stop()
	s.presence.Stop(ctx)
	if cancel != nil {
		cancel()
	}
	log.InfoContext(ctx, "session closed", "user", s.userID)
}

// fail logs err and shows it to the viewer as an alert.
func (s *Session) fail(ctx context.Context, conversationID, op string, err error) error {
	if CodeOf(err) == InternalServerError {
		log.ErrorContext(ctx, "session operation failed", "op", op, "user", s.userID, "conversation", conversationID, "err", err)
	} else {
		log.WarnContext(ctx, "session operation rejected", "op", op, "user", s.userID, "conversation", conversationID, "err", err)
	}
	alert(s.sink, conversationID, err)
	return err
}

// SessionManager tracks the live sessions of this process.
type SessionManager struct {
	deps Deps
	opts Options

	mu       sync.Mutex
	sessions map[*Session]struct{}
}

func NewSessionManager(deps Deps, opts Options) *SessionManager {
	opts = opts.withDefaults()
	if deps.Messages == nil {
		deps.Messages = NewMessageService(deps.Store, opts)
	}
	return &SessionManager{
		deps:     deps,
		opts:     opts,
		sessions: make(map[*Session]struct{}),
	}
}

// Open creates and starts a session for userID.
func (m *SessionManager) Open(ctx context.Context, userID string, sink EventSink) (*Session, error) {
	s := NewSession(userID, m.deps, sink, m.opts)
	if err := s.Start(ctx); err != nil {
		s.Close(context.Background())
		return nil, err
	}
	m.mu.Lock()
	m.sessions[s] = struct{}{}
	m.mu.Unlock()
	metrics.ActiveSessions.Inc()
	return s, nil
}

func (m *SessionManager) Release(ctx context.Context, s *Session) {
	m.mu.Lock()
	_, ok := m.sessions[s]
	delete(m.sessions, s)
	m.mu.Unlock()
	if !ok {
		return
	}
	closeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	s.Close(closeCtx)
	metrics.ActiveSessions.Dec()
}

func (m *SessionManager) SweepAll() {
	for _, s := range m.list() {
		s.Sweep()
	}
}

func (m *SessionManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// CloseAll releases every session, used on shutdown.
func (m *SessionManager) CloseAll(ctx context.Context) {
	for _, s := range m.list() {
		m.Release(ctx, s)
	}
}

func (m *SessionManager) list() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for s := range m.sessions {
		out = append(out, s)
	}
	return out
}

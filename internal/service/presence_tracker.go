package service

import (
	"Huddle/internal/metrics"
	"Huddle/internal/model"
	"Huddle/internal/pkg/presence"
	"context"
	log "log/slog"
	"sync"
)

// PresenceTracker mirrors the presence feed for one session.
type PresenceTracker interface {
	Start(ctx context.Context, selfID string) error
	IsOnline(userID string) bool
	Online() map[string]bool
	// MergeRoster returns users with IsOnline recomputed from presence.
	MergeRoster(users []model.User) []model.User
	// OnChange registers fn to run after every applied feed batch.
	OnChange(fn func())
	Stop(ctx context.Context)
}

type presenceTrackerImpl struct {
	backend presence.Backend
	sink    EventSink
	opts    Options

	mu        sync.RWMutex
	selfID    string
	records   map[string]model.PresenceRecord
	listeners []func()
	cancels   []func()
	stopped   bool
}

func NewPresenceTracker(backend presence.Backend, sink EventSink, opts Options) PresenceTracker {
	return &presenceTrackerImpl{
		backend: backend,
		sink:    sink,
		opts:    opts.withDefaults(),
		records: make(map[string]model.PresenceRecord),
	}
}

func (s *presenceTrackerImpl) Start(ctx context.Context, selfID string) error {
	s.mu.Lock()
	s.selfID = selfID
	s.mu.Unlock()

	cancelFeed, err := s.backend.Subscribe(ctx, s.onFeed)
	if err != nil {
		return err
	}
	cancelWatch, err := s.backend.WatchConnection(ctx, selfID, func(connected bool) {
		s.onConnection(ctx, connected)
	})
	if err != nil {
		cancelFeed()
		return err
	}

	s.mu.Lock()
	s.cancels = append(s.cancels, cancelFeed, cancelWatch)
	s.mu.Unlock()
	return nil
}

// onConnection re-registers on every reconnect: the offline value first, so
// a drop right after going online still ends offline.
func (s *presenceTrackerImpl) onConnection(ctx context.Context, connected bool) {
	if !connected {
		log.InfoContext(ctx, "presence connection lost")
		return
	}
	s.mu.RLock()
	selfID, stopped := s.selfID, s.stopped
	s.mu.RUnlock()
	if stopped {
		return
	}

	now := s.opts.Now()
	offline := model.PresenceRecord{UserID: selfID, State: model.Offline, ChangedAt: now}
	if err := s.backend.SetOnDisconnect(ctx, selfID, offline); err != nil {
		log.ErrorContext(ctx, "presence on-disconnect registration failed", "err", err)
		return
	}
	online := model.PresenceRecord{UserID: selfID, State: model.Online, ChangedAt: now}
	if err := s.backend.SetValue(ctx, selfID, online); err != nil {
		log.ErrorContext(ctx, "presence online write failed", "err", err)
	}
}

func (s *presenceTrackerImpl) onFeed(records map[string]model.PresenceRecord) {
	metrics.SnapshotsTotal.WithLabelValues("presence").Inc()

	next := make(map[string]model.PresenceRecord, len(records))
	for k, v := range records {
		next[k] = v
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.records = next
	listeners := append([]func(){}, s.listeners...)
	s.mu.Unlock()

	s.sink.Emit(Event{Type: EventPresence, Data: s.Online()})
	for _, fn := range listeners {
		fn()
	}
}

func (s *presenceTrackerImpl) IsOnline(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[userID].State == model.Online
}

func (s *presenceTrackerImpl) Online() map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]bool, len(s.records))
	for id, rec := range s.records {
		if rec.State == model.Online {
			out[id] = true
		}
	}
	return out
}

func (s *presenceTrackerImpl) MergeRoster(users []model.User) []model.User {
	out := make([]model.User, len(users))
	for i, u := range users {
		u.IsOnline = s.IsOnline(u.ID)
		out[i] = u
	}
	return out
}

func (s *presenceTrackerImpl) OnChange(fn func()) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Stop cancels the feed and commits the offline value right away.
func (s *presenceTrackerImpl) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	cancels := s.cancels
	s.cancels = nil
	selfID := s.selfID
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	if selfID == "" {
		return
	}
	if err := s.backend.Disconnect(ctx, selfID); err != nil {
		log.WarnContext(ctx, "presence disconnect failed", "err", err)
	}
}

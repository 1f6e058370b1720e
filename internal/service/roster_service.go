package service

import (
	"Huddle/internal/metrics"
	"Huddle/internal/model"
	"Huddle/internal/pkg/docstore"
	"context"
	"sort"
	"sync"
)

// RosterService keeps the user list and the rooms visible to the viewer.
type RosterService interface {
	Start(ctx context.Context, viewerID string) error
	Users() []model.User
	User(userID string) (model.User, bool)
	Rooms() []model.Room
	Room(roomID string) (model.Room, bool)
	DisplayName(userID string) string
	// OnRooms is called with the visible rooms after every rooms snapshot.
	OnRooms(fn func(rooms []model.Room))
	// OnSelf is called with the viewer's own user document on every change.
	OnSelf(fn func(self model.User))
	Stop()
}

type rosterServiceImpl struct {
	store    docstore.Store
	presence PresenceTracker
	sink     EventSink

	mu       sync.RWMutex
	viewerID string
	users    map[string]model.User
	order    []string
	rooms    []model.Room
	roomsFns []func([]model.Room)
	selfFns  []func(model.User)
	cancels  []func()
}

func NewRosterService(store docstore.Store, presence PresenceTracker, sink EventSink) RosterService {
	s := &rosterServiceImpl{
		store:    store,
		presence: presence,
		sink:     sink,
		users:    make(map[string]model.User),
	}
	presence.OnChange(s.emit)
	return s
}

func (s *rosterServiceImpl) Start(ctx context.Context, viewerID string) error {
	s.mu.Lock()
	s.viewerID = viewerID
	s.mu.Unlock()

	cancelUsers, err := s.store.Subscribe(ctx, docstore.Query{Collection: model.UsersCollection}, s.onUsers)
	if err != nil {
		return err
	}
	cancelRooms, err := s.store.Subscribe(ctx, docstore.Query{
		Collection: model.RoomsCollection,
		OrderBy:    model.FieldCreatedAt,
	}, s.onRooms)
	if err != nil {
		cancelUsers()
		return err
	}

	s.mu.Lock()
	s.cancels = append(s.cancels, cancelUsers, cancelRooms)
	s.mu.Unlock()
	return nil
}

func (s *rosterServiceImpl) onUsers(docs []docstore.Document) {
	metrics.SnapshotsTotal.WithLabelValues("users").Inc()

	users := make(map[string]model.User, len(docs))
	order := make([]string, 0, len(docs))
	for _, doc := range docs {
		u := model.UserFromDocument(doc)
		users[u.ID] = u
		order = append(order, u.ID)
	}
	sort.Slice(order, func(i, j int) bool {
		a, b := users[order[i]], users[order[j]]
		if a.DisplayName() != b.DisplayName() {
			return a.DisplayName() < b.DisplayName()
		}
		return a.ID < b.ID
	})

	s.mu.Lock()
	s.users = users
	s.order = order
	self, hasSelf := users[s.viewerID]
	listeners := append([]func(model.User){}, s.selfFns...)
	s.mu.Unlock()

	s.emit()
	if hasSelf {
		for _, fn := range listeners {
			fn(self)
		}
	}
}

func (s *rosterServiceImpl) onRooms(docs []docstore.Document) {
	metrics.SnapshotsTotal.WithLabelValues("rooms").Inc()

	s.mu.RLock()
	viewerID := s.viewerID
	s.mu.RUnlock()

	rooms := make([]model.Room, 0, len(docs))
	for _, doc := range docs {
		r := model.RoomFromDocument(doc)
		if r.IsVisibleTo(viewerID) {
			rooms = append(rooms, r)
		}
	}
	sort.SliceStable(rooms, func(i, j int) bool {
		if rooms[i].Order != rooms[j].Order {
			return rooms[i].Order < rooms[j].Order
		}
		return rooms[i].CreatedAt.Before(rooms[j].CreatedAt)
	})

	s.mu.Lock()
	s.rooms = rooms
	listeners := append([]func([]model.Room){}, s.roomsFns...)
	s.mu.Unlock()

	s.emit()
	for _, fn := range listeners {
		fn(append([]model.Room(nil), rooms...))
	}
}

func (s *rosterServiceImpl) emit() {
	s.sink.Emit(Event{Type: EventRoster, Data: RosterView{Users: s.Users(), Rooms: s.Rooms()}})
}

func (s *rosterServiceImpl) Users() []model.User {
	s.mu.RLock()
	users := make([]model.User, 0, len(s.order))
	for _, id := range s.order {
		users = append(users, s.users[id])
	}
	s.mu.RUnlock()
	return s.presence.MergeRoster(users)
}

func (s *rosterServiceImpl) User(userID string) (model.User, bool) {
	s.mu.RLock()
	u, ok := s.users[userID]
	s.mu.RUnlock()
	if !ok {
		return model.User{}, false
	}
	u.IsOnline = s.presence.IsOnline(userID)
	return u, true
}

func (s *rosterServiceImpl) Rooms() []model.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Room(nil), s.rooms...)
}

func (s *rosterServiceImpl) Room(roomID string) (model.Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.rooms {
		if r.ID == roomID {
			return r, true
		}
	}
	return model.Room{}, false
}

// DisplayName returns "" for unknown users so callers can fall back to the
// snapshot stored on the message.
func (s *rosterServiceImpl) DisplayName(userID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return ""
	}
	return u.DisplayName()
}

func (s *rosterServiceImpl) OnRooms(fn func([]model.Room)) {
	s.mu.Lock()
	s.roomsFns = append(s.roomsFns, fn)
	s.mu.Unlock()
}

func (s *rosterServiceImpl) OnSelf(fn func(model.User)) {
	s.mu.Lock()
	s.selfFns = append(s.selfFns, fn)
	s.mu.Unlock()
}

func (s *rosterServiceImpl) Stop() {
	s.mu.Lock()
	cancels := s.cancels
	s.cancels = nil
	s.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

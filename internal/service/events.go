package service

import (
	"Huddle/internal/api/config"
	"Huddle/internal/metrics"
	"Huddle/internal/model"
	"context"
	log "log/slog"
	"time"
	"unicode/utf8"
)

type EventType string

const (
	EventUnread       EventType = "unread"
	EventMessages     EventType = "messages"
	EventPinned       EventType = "pinned"
	EventReceipts     EventType = "receipts"
	EventTyping       EventType = "typing"
	EventPresence     EventType = "presence"
	EventRoster       EventType = "roster"
	EventNudge        EventType = "nudge"
	EventShake        EventType = "shake"
	EventVibrate      EventType = "vibrate"
	EventSound        EventType = "sound"
	EventNotification EventType = "notification"
	EventAlert        EventType = "alert"
)

// Event is a change notification the host UI re-renders from.
type Event struct {
	Type           EventType `json:"type"`
	ConversationID string    `json:"conversationId,omitempty"`
	Data           any       `json:"data,omitempty"`
}

// EventSink receives events. Emit must not call back into the session.
type EventSink interface {
	Emit(e Event)
}

type EventSinkFunc func(e Event)

func (f EventSinkFunc) Emit(e Event) { f(e) }

// MessageWindow is the payload of EventMessages.
type MessageWindow struct {
	Messages       []model.Message `json:"messages"`
	WindowSize     int             `json:"windowSize"`
	HasMore        bool            `json:"hasMore"`
	Filter         string          `json:"filter,omitempty"`
	ScrollToEnd    bool            `json:"scrollToEnd"`
	PreserveAnchor bool            `json:"preserveAnchor"`
}

// Receipts is the payload of EventReceipts. A message is read by the peer
// when it was created at or before PeerLastSeen.
type Receipts struct {
	PeerID       string    `json:"peerId"`
	PeerLastSeen time.Time `json:"peerLastSeen"`
}

type NudgeData struct {
	FromID   string `json:"fromId"`
	FromName string `json:"fromName"`
	NudgeID  string `json:"nudgeId"`
}

type ShakeData struct {
	Active bool   `json:"active"`
	FromID string `json:"fromId,omitempty"`
}

type AlertData struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type RosterView struct {
	Users []model.User `json:"users"`
	Rooms []model.Room `json:"rooms"`
}

type NotificationKind string

const (
	NotifyMessage NotificationKind = "message"
	NotifyNudge   NotificationKind = "nudge"
)

// Notification is a local "system" notification for a hidden page.
type Notification struct {
	Kind           NotificationKind `json:"kind"`
	RecipientID    string           `json:"recipientId"`
	ConversationID string           `json:"conversationId"`
	SenderID       string           `json:"senderId"`
	Title          string           `json:"title"`
	Body           string           `json:"body"`
	At             time.Time        `json:"at"`
}

// Notifier forwards notifications outside the session, e.g. to push delivery.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Notification) error { return nil }

// Visibility tells whether the viewer's page is focused and visible.
type Visibility interface {
	Visible() bool
}

// NudgeVibration is the vibration pattern in milliseconds (on, off, on).
var NudgeVibration = []int{300, 100, 300}

// Options carries tunables and the clock. Tests swap Now and AfterFunc.
type Options struct {
	Chat      config.ChatConfig
	Now       func() time.Time
	AfterFunc func(d time.Duration, f func()) (stop func() bool)
}

func DefaultOptions() Options {
	return Options{
		Chat: config.DefaultChat(),
		Now:  time.Now,
		AfterFunc: func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		},
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Now == nil {
		o.Now = d.Now
	}
	if o.AfterFunc == nil {
		o.AfterFunc = d.AfterFunc
	}
	if o.Chat.WindowSize <= 0 {
		o.Chat.WindowSize = d.Chat.WindowSize
	}
	if o.Chat.WindowStep <= 0 {
		o.Chat.WindowStep = d.Chat.WindowStep
	}
	if o.Chat.NotificationFreshness <= 0 {
		o.Chat.NotificationFreshness = d.Chat.NotificationFreshness
	}
	if o.Chat.NudgeFreshness <= 0 {
		o.Chat.NudgeFreshness = d.Chat.NudgeFreshness
	}
	if o.Chat.TypingIdle <= 0 {
		o.Chat.TypingIdle = d.Chat.TypingIdle
	}
	if o.Chat.TypingStale <= 0 {
		o.Chat.TypingStale = d.Chat.TypingStale
	}
	if o.Chat.ShakeDuration <= 0 {
		o.Chat.ShakeDuration = d.Chat.ShakeDuration
	}
	if o.Chat.EditWindow <= 0 {
		o.Chat.EditWindow = d.Chat.EditWindow
	}
	if o.Chat.PreviewLength <= 0 {
		o.Chat.PreviewLength = d.Chat.PreviewLength
	}
	return o
}

// within reports whether at lies inside window of now, in either direction
// so small clock skew between writer and reader is tolerated.
func within(now, at time.Time, window time.Duration) bool {
	if at.IsZero() {
		return false
	}
	d := now.Sub(at)
	if d < 0 {
		d = -d
	}
	return d <= window
}

func truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "…"
}

// notify shows n in the UI and hands it to the outbound notifier.
func notify(ctx context.Context, sink EventSink, out Notifier, n Notification) {
	metrics.NotificationsTotal.WithLabelValues(string(n.Kind)).Inc()
	sink.Emit(Event{Type: EventNotification, ConversationID: n.ConversationID, Data: n})
	if err := out.Notify(ctx, n); err != nil {
		log.WarnContext(ctx, "notification forward failed", "conversation", n.ConversationID, "err", err)
	}
}

func alert(sink EventSink, conversationID string, err error) {
	code, msg := CodeOf(err), err.Error()
	if code == InternalServerError {
		msg = UnExpectedError.Error()
	}
	sink.Emit(Event{Type: EventAlert, ConversationID: conversationID, Data: AlertData{
		Code:    code,
		Message: msg,
	}})
}

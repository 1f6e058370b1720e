package model

import (
	"Huddle/internal/pkg/docstore"
	"time"
)

type MessageKind string

const (
	KindText  MessageKind = "text"
	KindImage MessageKind = "image"
	KindAudio MessageKind = "audio"
	KindNudge MessageKind = "nudge"
)

// ParseMessageKind maps unknown tags to KindText.
func ParseMessageKind(s string) MessageKind {
	switch MessageKind(s) {
	case KindImage:
		return KindImage
	case KindAudio:
		return KindAudio
	case KindNudge:
		return KindNudge
	default:
		return KindText
	}
}

// Attachment points at an uploaded blob. URL may be an object key that is
// resolved to a download link when rendered.
type Attachment struct {
	URL      string `json:"url"`
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// ReplyRef is a snapshot of the quoted message taken at send time.
type ReplyRef struct {
	ID       string `json:"id"`
	UserID   string `json:"userId,omitempty"`
	UserName string `json:"userName"`
	Text     string `json:"text"`
}

type Message struct {
	ID              string            `json:"id"`
	ConversationID  string            `json:"conversationId"`
	AuthorID        string            `json:"userId"`
	AuthorName      string            `json:"userName"`
	AuthorAvatar    string            `json:"userAvatar,omitempty"`
	Text            string            `json:"text,omitempty"`
	Attachment      *Attachment       `json:"attachment,omitempty"`
	Kind            MessageKind       `json:"type"`
	CreatedAt       time.Time         `json:"createdAt"`
	ClientTimestamp int64             `json:"timestamp"`
	ReplyTo         *ReplyRef         `json:"replyTo,omitempty"`
	Reactions       map[string]string `json:"reactions,omitempty"`
	IsPinned        bool              `json:"isPinned"`
	IsEdited        bool              `json:"isEdited"`
}

func MessageFromDocument(conversationID string, doc docstore.Document) Message {
	f := doc.Fields
	m := Message{
		ID:              doc.ID,
		ConversationID:  conversationID,
		AuthorID:        f.String(FieldUserID),
		AuthorName:      f.String(FieldUserName),
		AuthorAvatar:    f.String(FieldUserAvatar),
		Text:            f.String(FieldText),
		Kind:            ParseMessageKind(f.String(FieldType)),
		CreatedAt:       f.Time(FieldCreatedAt),
		ClientTimestamp: f.Int64(FieldTimestamp),
		IsPinned:        f.Bool(FieldIsPinned),
		IsEdited:        f.Bool(FieldIsEdited),
	}
	if a := f.Map(FieldAttachment); a != nil {
		m.Attachment = &Attachment{
			URL:      a.String("url"),
			Name:     a.String("name"),
			MimeType: a.String("mimeType"),
		}
	}
	if r := f.Map(FieldReplyTo); r != nil {
		m.ReplyTo = &ReplyRef{
			ID:       r.String("id"),
			UserID:   r.String("userId"),
			UserName: r.String("userName"),
			Text:     r.String("text"),
		}
	}
	if reactions := f.Map(FieldReactions); len(reactions) > 0 {
		m.Reactions = make(map[string]string, len(reactions))
		for uid, v := range reactions {
			if emoji, ok := v.(string); ok && emoji != "" {
				m.Reactions[uid] = emoji
			}
		}
	}
	return m
}

// Fields is the document written on send. createdAt is left to the caller
// so it can use the server timestamp sentinel.
func (m Message) Fields() docstore.Fields {
	f := docstore.Fields{
		FieldUserID:     m.AuthorID,
		FieldUserName:   m.AuthorName,
		FieldUserAvatar: m.AuthorAvatar,
		FieldText:       m.Text,
		FieldType:       string(m.Kind),
		FieldTimestamp:  m.ClientTimestamp,
		FieldReactions:  map[string]any{},
		FieldIsPinned:   false,
		FieldIsEdited:   false,
	}
	if m.Attachment != nil {
		f[FieldAttachment] = map[string]any{
			"url":      m.Attachment.URL,
			"name":     m.Attachment.Name,
			"mimeType": m.Attachment.MimeType,
		}
	}
	if m.ReplyTo != nil {
		f[FieldReplyTo] = map[string]any{
			"id":       m.ReplyTo.ID,
			"userId":   m.ReplyTo.UserID,
			"userName": m.ReplyTo.UserName,
			"text":     m.ReplyTo.Text,
		}
	}
	return f
}

// Preview is the one-line text shown in conversation lists and notifications.
func (m Message) Preview() string {
	switch m.Kind {
	case KindImage:
		return "📷 Image"
	case KindAudio:
		return "🎤 Audio"
	case KindNudge:
		return "🔔 Nudge!"
	case KindText:
		return m.Text
	}
	return m.Text
}

// Counted reports whether the message takes part in unread accounting.
// Nudges are signalled through the nudge fields instead.
func (m Message) Counted() bool {
	switch m.Kind {
	case KindText, KindImage, KindAudio:
		return true
	case KindNudge:
		return false
	}
	return true
}

// Less orders by server time, falling back to the client timestamp while the
// server time is still unresolved.
func (m Message) Less(other Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) && !m.CreatedAt.IsZero() && !other.CreatedAt.IsZero() {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	if m.ClientTimestamp != other.ClientTimestamp {
		return m.ClientTimestamp < other.ClientTimestamp
	}
	return m.ID < other.ID
}

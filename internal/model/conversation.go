package model

import (
	"Huddle/internal/pkg/docstore"
	"time"
)

// Conversation is the metadata document, one per room id or DM key.
type Conversation struct {
	ID              string               `json:"id"`
	MessageCount    int64                `json:"messageCount"`
	ReadCounts      map[string]int64     `json:"readCounts,omitempty"`
	LastSeen        map[string]time.Time `json:"lastSeen,omitempty"`
	LastMessageAt   time.Time            `json:"lastMessageAt,omitempty"`
	LastMessageText string               `json:"lastMessageText,omitempty"`
	LastSenderID    string               `json:"lastSenderId,omitempty"`
	LastNudge       string               `json:"lastNudge,omitempty"`
	LastNudgeAt     time.Time            `json:"lastNudgeAt,omitempty"`
	LastNudgeID     string               `json:"lastNudgeId,omitempty"`
}

func ConversationFromDocument(doc docstore.Document) Conversation {
	f := doc.Fields
	c := Conversation{
		ID:              doc.ID,
		MessageCount:    f.Int64(FieldMessageCount),
		ReadCounts:      make(map[string]int64),
		LastSeen:        make(map[string]time.Time),
		LastMessageAt:   f.Time(FieldLastMessageAt),
		LastMessageText: f.String(FieldLastMessageText),
		LastSenderID:    f.String(FieldLastSenderID),
		LastNudge:       f.String(FieldLastNudge),
		LastNudgeAt:     f.Time(FieldLastNudgeAt),
		LastNudgeID:     f.String(FieldLastNudgeID),
	}
	for uid := range f.Map(FieldReadCounts) {
		c.ReadCounts[uid] = f.Int64(ReadCountField(uid))
	}
	for uid := range f.Map(FieldLastSeen) {
		c.LastSeen[uid] = f.Time(LastSeenField(uid))
	}
	return c
}

// ReadCount is 0 for viewers that never opened the conversation.
func (c Conversation) ReadCount(userID string) int64 {
	return c.ReadCounts[userID]
}

func (c Conversation) SeenAt(userID string) time.Time {
	return c.LastSeen[userID]
}

package model

import (
	"Huddle/internal/pkg/docstore"
	"time"
)

type TypingFlag struct {
	ConversationID string    `json:"conversationId"`
	UserID         string    `json:"userId"`
	Name           string    `json:"name"`
	IsTyping       bool      `json:"isTyping"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func TypingFlagFromDocument(conversationID string, doc docstore.Document) TypingFlag {
	return TypingFlag{
		ConversationID: conversationID,
		UserID:         doc.ID,
		Name:           doc.Fields.String(FieldName),
		IsTyping:       doc.Fields.Bool(FieldIsTyping),
		UpdatedAt:      doc.Fields.Time(FieldUpdatedAt),
	}
}

// Typist is what the UI renders for "currently typing".
type Typist struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

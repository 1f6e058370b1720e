package model

import (
	"Huddle/internal/pkg/docstore"
	"time"
)

// User is a roster entry. IsOnline is never stored, it is merged in from presence.
type User struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email,omitempty"`
	PhotoURL      string    `json:"photoURL,omitempty"`
	IsOnline      bool      `json:"isOnline"`
	LastNudgeFrom string    `json:"lastNudgeFrom,omitempty"`
	LastNudgeAt   time.Time `json:"lastNudgeAt,omitempty"`
	LastNudgeID   string    `json:"lastNudgeId,omitempty"`
}

func UserFromDocument(doc docstore.Document) User {
	f := doc.Fields
	return User{
		ID:            doc.ID,
		Name:          f.String(FieldName),
		Email:         f.String(FieldEmail),
		PhotoURL:      f.String(FieldPhotoURL),
		LastNudgeFrom: f.String(FieldLastNudgeFrom),
		LastNudgeAt:   f.Time(FieldLastNudgeAt),
		LastNudgeID:   f.String(FieldLastNudgeID),
	}
}

// DisplayName falls back to the email local part, then the id.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	if u.Email != "" {
		for i, r := range u.Email {
			if r == '@' {
				return u.Email[:i]
			}
		}
		return u.Email
	}
	return u.ID
}

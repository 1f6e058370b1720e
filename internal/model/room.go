package model

import (
	"Huddle/internal/pkg/docstore"
	"slices"
	"time"
)

type Room struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Order        int64     `json:"order"`
	AllowedUsers []string  `json:"allowedUsers,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

func RoomFromDocument(doc docstore.Document) Room {
	f := doc.Fields
	return Room{
		ID:           doc.ID,
		Name:         f.String(FieldName),
		Order:        f.Int64(FieldOrder),
		AllowedUsers: f.StringSlice(FieldAllowedUsers),
		CreatedAt:    f.Time(FieldCreatedAt),
	}
}

// IsVisibleTo reports whether userID may see the room. An empty allow list
// means the room is public.
func (r Room) IsVisibleTo(userID string) bool {
	return len(r.AllowedUsers) == 0 || slices.Contains(r.AllowedUsers, userID)
}

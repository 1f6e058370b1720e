package model

import "time"

type PresenceState string

const (
	Online  PresenceState = "online"
	Offline PresenceState = "offline"
)

type PresenceRecord struct {
	UserID    string        `json:"userId"`
	State     PresenceState `json:"state"`
	ChangedAt time.Time     `json:"changedAt"`
}

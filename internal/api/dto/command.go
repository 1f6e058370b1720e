package dto

import "github.com/goccy/go-json"

// Command types accepted on the session socket.
const (
	CmdOpen       = "open"
	CmdOpenDM     = "openDM"
	CmdLoadMore   = "loadMore"
	CmdFilter     = "filter"
	CmdKeystroke  = "keystroke"
	CmdSend       = "send"
	CmdNudge      = "nudge"
	CmdReact      = "react"
	CmdPin        = "pin"
	CmdEdit       = "edit"
	CmdDelete     = "delete"
	CmdVisibility = "visibility"
)

// Command is one frame from the host UI. ID is echoed in the ack.
type Command struct {
	ID   string          `json:"id"`
	Type string          `json:"type" validate:"required"`
	Data json.RawMessage `json:"data"`
}

type OpenCmd struct {
	ConversationID string `json:"conversationId" validate:"required"`
}

type OpenDMCmd struct {
	PeerID string `json:"peerId" validate:"required"`
}

type FilterCmd struct {
	Query string `json:"query" validate:"max=200"`
}

type AttachmentDTO struct {
	URL      string `json:"url" validate:"required"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
}

type SendCmd struct {
	Text       string         `json:"text"`
	ReplyToID  string         `json:"replyToId"`
	Attachment *AttachmentDTO `json:"attachment"`
}

type ReactCmd struct {
	MessageID string `json:"messageId" validate:"required"`
	Emoji     string `json:"emoji" validate:"required,max=16"`
}

type MessageRefCmd struct {
	MessageID string `json:"messageId" validate:"required"`
}

type EditCmd struct {
	MessageID string `json:"messageId" validate:"required"`
	Text      string `json:"text" validate:"required"`
}

type VisibilityCmd struct {
	Visible bool `json:"visible"`
}

// Ack answers a command.
type Ack struct {
	Type    string      `json:"type"`
	ID      string      `json:"id,omitempty"`
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

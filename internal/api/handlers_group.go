package api

import "Huddle/internal/api/handler"

// HandlersGroup holds the initialized handlers. AttachmentHandler is nil
// when the object store is disabled.
type HandlersGroup struct {
	ChatHandler       *handler.ChatHandler
	WsHandler         *handler.WsHandler
	AttachmentHandler *handler.AttachmentHandler
}

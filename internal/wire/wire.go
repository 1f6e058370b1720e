package wire

import (
	"Huddle/internal/api"
	"Huddle/internal/api/config"
	"Huddle/internal/api/handler"
	"Huddle/internal/job"
	"Huddle/internal/pkg/cron"
	"Huddle/internal/pkg/docstore"
	"Huddle/internal/pkg/presence"
	"Huddle/internal/service"

	"github.com/gin-gonic/gin"
)

// Backends are the infrastructure adapters picked by main from config.
// Notifier, Attachments and PresenceSweeper may be nil.
type Backends struct {
	Store           docstore.Store
	Presence        presence.Backend
	PresenceSweeper job.PresenceSweeper
	Notifier        service.Notifier
	Attachments     service.AttachmentResolver
}

// ApplicationContainer holds the top level components the process runs.
type ApplicationContainer struct {
	Router   *gin.Engine
	Sessions *service.SessionManager
	CronMgr  *cron.Manager
}

func BuildApplication(b Backends, cfg *config.Config) (*ApplicationContainer, error) {
	opts := service.DefaultOptions()
	opts.Chat = cfg.Chat

	sessions := service.NewSessionManager(service.Deps{
		Store:       b.Store,
		Presence:    b.Presence,
		Notifier:    b.Notifier,
		Attachments: b.Attachments,
		Messages:    service.NewMessageService(b.Store, opts),
	}, opts)

	handlers := &api.HandlersGroup{
		ChatHandler: handler.NewChatHandler(),
		WsHandler:   handler.NewWsHandler(sessions),
	}
	if b.Attachments != nil {
		handlers.AttachmentHandler = handler.NewAttachmentHandler()
	}
	router := api.SetupRouter(handlers, cfg)

	var presenceJob *job.PresenceSweepJob
	if b.PresenceSweeper != nil {
		presenceJob = job.NewPresenceSweepJob(b.PresenceSweeper)
	}
	cronMgr := cron.NewCronManager(cfg.Chat, job.NewTypingSweepJob(sessions), presenceJob)

	return &ApplicationContainer{
		Router:   router,
		Sessions: sessions,
		CronMgr:  cronMgr,
	}, nil
}

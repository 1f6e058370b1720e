package cron

import (
	"Huddle/internal/api/config"
	"Huddle/internal/job"
	log "log/slog"

	"github.com/robfig/cron/v3"
)

type Manager struct {
	engine           *cron.Cron
	cfg              config.ChatConfig
	typingSweepJob   *job.TypingSweepJob
	presenceSweepJob *job.PresenceSweepJob
}

// NewCronManager takes a nil presence job when presence needs no sweeping.
func NewCronManager(cfg config.ChatConfig, typingSweepJob *job.TypingSweepJob, presenceSweepJob *job.PresenceSweepJob) *Manager {
	return &Manager{
		engine:           cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		cfg:              cfg,
		typingSweepJob:   typingSweepJob,
		presenceSweepJob: presenceSweepJob,
	}
}

// RegisterJobs adds the sweep jobs on their configured schedules.
func (s *Manager) RegisterJobs() error {
	if _, err := s.engine.AddJob(s.cfg.TypingSweep, s.typingSweepJob); err != nil {
		return err
	}
	if s.presenceSweepJob != nil {
		if _, err := s.engine.AddJob(s.cfg.PresenceSweep, s.presenceSweepJob); err != nil {
			return err
		}
	}
	return nil
}

func (s *Manager) Start() {
	log.Info("Cron engine starting", "jobs", len(s.engine.Entries()))
	s.engine.Start()
}

func (s *Manager) Stop() {
	log.Info("Cron engine stopping")
	<-s.engine.Stop().Done()
}

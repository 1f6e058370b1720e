package cron

import log "log/slog"

// InitCron registers the sweeps and starts the engine.
func InitCron(mgr *Manager) error {
	if err := mgr.RegisterJobs(); err != nil {
		return err
	}
	log.Info("Cron sweeps starting",
		"typing", mgr.cfg.TypingSweep,
		"presence", mgr.cfg.PresenceSweep,
		"presenceEnabled", mgr.presenceSweepJob != nil)
	mgr.Start()
	return nil
}

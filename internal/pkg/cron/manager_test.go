package cron

import (
	"Huddle/internal/api/config"
	"Huddle/internal/job"
	"context"
	"testing"
)

type nopSweeper struct{}

func (nopSweeper) Sweep(context.Context) (int, error) { return 0, nil }

func TestRegisterJobs(t *testing.T) {
	tests := []struct {
		name     string
		presence *job.PresenceSweepJob
		want     int
	}{
		{"typing only", nil, 1},
		{"typing and presence", job.NewPresenceSweepJob(nopSweeper{}), 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewCronManager(config.DefaultChat(), job.NewTypingSweepJob(nil), tt.presence)
			if err := m.RegisterJobs(); err != nil {
				t.Fatal(err)
			}
			if got := len(m.engine.Entries()); got != tt.want {
				t.Errorf("entries = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRegisterJobsRejectsBadSchedule(t *testing.T) {
	cfg := config.DefaultChat()
	cfg.TypingSweep = "every second"
	m := NewCronManager(cfg, job.NewTypingSweepJob(nil), nil)
	if err := m.RegisterJobs(); err == nil {
		t.Error("bad schedule accepted")
	}
}

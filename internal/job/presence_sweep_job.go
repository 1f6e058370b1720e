package job

import (
	"Huddle/internal/pkg/logger"
	"context"
	log "log/slog"
	"time"

	"github.com/google/uuid"
)

// PresenceSweeper commits the on-disconnect value of connections whose
// lease ran out.
type PresenceSweeper interface {
	Sweep(ctx context.Context) (int, error)
}

type PresenceSweepJob struct {
	sweeper PresenceSweeper
}

func NewPresenceSweepJob(sweeper PresenceSweeper) *PresenceSweepJob {
	return &PresenceSweepJob{sweeper: sweeper}
}

func (s *PresenceSweepJob) Run() {
	ctx := logger.WithTrace(context.Background(), "job-presence-"+uuid.NewString())
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	n, err := s.sweeper.Sweep(ctx)
	if err != nil {
		log.ErrorContext(ctx, "presence sweep failed", "err", err)
		return
	}
	if n > 0 {
		log.InfoContext(ctx, "expired presence leases committed offline", "count", n)
	}
}

package job

import (
	"Huddle/internal/service"
)

// TypingSweepJob re-evaluates typing flags of every live session so a
// writer that vanished drops out without a new snapshot.
type TypingSweepJob struct {
	sessions *service.SessionManager
}

func NewTypingSweepJob(sessions *service.SessionManager) *TypingSweepJob {
	return &TypingSweepJob{sessions: sessions}
}

func (s *TypingSweepJob) Run() {
	s.sessions.SweepAll()
}

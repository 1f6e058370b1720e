package job

import (
	"context"
	"errors"
	"testing"
)

type countingSweeper struct {
	calls int
	err   error
}

func (s *countingSweeper) Sweep(ctx context.Context) (int, error) {
	s.calls++
	if _, ok := ctx.Deadline(); !ok {
		return 0, errors.New("sweep without deadline")
	}
	return 1, s.err
}

func TestPresenceSweepJobRuns(t *testing.T) {
	sweeper := &countingSweeper{}
	NewPresenceSweepJob(sweeper).Run()
	sweeper.err = errors.New("redis down")
	NewPresenceSweepJob(sweeper).Run()
	if sweeper.calls != 2 {
		t.Errorf("calls = %d, want 2", sweeper.calls)
	}
}

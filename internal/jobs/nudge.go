package jobs

import (
	"context"

	"genqueue/internal/infra"
	"genqueue/internal/sqlinline"
)

// PGNudger signals the job_queue channel that workers LISTEN on.
type PGNudger struct {
	exec infra.SQLExecutor
}

func NewPGNudger(exec infra.SQLExecutor) *PGNudger {
	return &PGNudger{exec: exec}
}

func (n *PGNudger) Nudge(ctx context.Context, jobID string) error {
	_, err := n.exec.Exec(ctx, sqlinline.QNotifyJobQueued, jobID)
	return err
}

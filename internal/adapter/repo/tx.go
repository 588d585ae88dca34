package repo

import (
	"context"

	"genqueue/internal/domain"
	"genqueue/internal/infra"
)

// Transactor opens a transaction on the runner and binds a job repository to it.
type Transactor struct {
	runner *infra.SQLRunner
}

func NewTransactor(runner *infra.SQLRunner) *Transactor {
	return &Transactor{runner: runner}
}

func (t *Transactor) WithinTx(ctx context.Context, fn func(domain.JobRepository) error) error {
	return t.runner.InTx(ctx, func(exec infra.SQLExecutor) error {
		return fn(NewJobRepository(exec))
	})
}

var _ domain.Transactor = (*Transactor)(nil)

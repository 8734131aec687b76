package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/relivv-escrow/internal/escrow"
	"github.com/angelmondragon/relivv-escrow/pkg/logger"
)

const defaultReleaseBatch = 100

type releaser interface {
	ReleaseDue(ctx context.Context, now time.Time, limit int) (escrow.ReleaseDueResult, error)
}

type EscrowReleaseJobParams struct {
	Logger    *logger.Logger
	Releaser  releaser
	BatchSize int
	Now       func() time.Time
}

// NewEscrowReleaseJob pays out held funds whose release window has elapsed.
func NewEscrowReleaseJob(params EscrowReleaseJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Releaser == nil {
		return nil, fmt.Errorf("escrow releaser required")
	}
	if params.BatchSize <= 0 {
		params.BatchSize = defaultReleaseBatch
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &escrowReleaseJob{
		logg:     params.Logger,
		releaser: params.Releaser,
		batch:    params.BatchSize,
		now:      params.Now,
	}, nil
}

type escrowReleaseJob struct {
	logg     *logger.Logger
	releaser releaser
	batch    int
	now      func() time.Time
}

func (j *escrowReleaseJob) Name() string { return "escrow-release" }

func (j *escrowReleaseJob) Run(ctx context.Context) error {
	res, err := j.releaser.ReleaseDue(ctx, j.now().UTC(), j.batch)
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"scanned":  res.Scanned,
		"released": res.Released,
	}), "escrow release scan complete")
	if err != nil {
		return fmt.Errorf("escrow release: %w", err)
	}
	return nil
}

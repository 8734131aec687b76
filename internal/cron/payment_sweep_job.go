package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/relivv-escrow/internal/payments"
	"github.com/angelmondragon/relivv-escrow/pkg/logger"
)

type sweeper interface {
	Sweep(ctx context.Context, now time.Time) (payments.SweepResult, error)
}

type PaymentSweepJobParams struct {
	Logger  *logger.Logger
	Sweeper sweeper
	Now     func() time.Time
}

// NewPaymentSweepJob settles sessions whose webhook never arrived and whose
// buyer never polled.
func NewPaymentSweepJob(params PaymentSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sweeper == nil {
		return nil, fmt.Errorf("payment sweeper required")
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &paymentSweepJob{logg: params.Logger, sweeper: params.Sweeper, now: params.Now}, nil
}

type paymentSweepJob struct {
	logg    *logger.Logger
	sweeper sweeper
	now     func() time.Time
}

func (j *paymentSweepJob) Name() string { return "payment-sweep" }

func (j *paymentSweepJob) Run(ctx context.Context) error {
	res, err := j.sweeper.Sweep(ctx, j.now().UTC())
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"checked": res.Checked,
		"settled": res.Settled,
	}), "payment sweep complete")
	if err != nil {
		return fmt.Errorf("payment sweep: %w", err)
	}
	return nil
}

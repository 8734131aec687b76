package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/relivv-escrow/internal/escrow"
	"github.com/angelmondragon/relivv-escrow/pkg/logger"
)

const defaultReservationTTL = 30 * time.Minute

type unpaidExpirer interface {
	ExpireUnpaid(ctx context.Context, cutoff time.Time, limit int) (escrow.ExpireResult, error)
}

type ReservationExpiryJobParams struct {
	Logger    *logger.Logger
	Expirer   unpaidExpirer
	TTL       time.Duration
	BatchSize int
	Now       func() time.Time
}

// NewReservationExpiryJob puts products back on sale when their pending
// transaction never reached the gateway within TTL.
func NewReservationExpiryJob(params ReservationExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Expirer == nil {
		return nil, fmt.Errorf("unpaid reservation expirer required")
	}
	if params.TTL <= 0 {
		params.TTL = defaultReservationTTL
	}
	if params.BatchSize <= 0 {
		params.BatchSize = defaultReleaseBatch
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &reservationExpiryJob{params}, nil
}

type reservationExpiryJob struct {
	ReservationExpiryJobParams
}

func (j *reservationExpiryJob) Name() string { return "reservation-expiry" }

func (j *reservationExpiryJob) Run(ctx context.Context) error {
	cutoff := j.Now().UTC().Add(-j.TTL)
	res, err := j.Expirer.ExpireUnpaid(ctx, cutoff, j.BatchSize)
	j.Logger.Info(j.Logger.WithFields(ctx, map[string]any{
		"cutoff":  cutoff,
		"scanned": res.Scanned,
		"expired": res.Expired,
	}), "reservation expiry complete")
	if err != nil {
		return fmt.Errorf("reservation expiry: %w", err)
	}
	return nil
}

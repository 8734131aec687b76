package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/relivv-escrow/pkg/logger"
)

const defaultOutboxRetention = 30 * 24 * time.Hour

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type publishedOutboxPruner interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository publishedOutboxPruner
	Retention  time.Duration
	Now        func() time.Time
}

// NewOutboxRetentionJob prunes outbox rows that were published longer ago than
// Retention. Rows still waiting to publish are kept regardless of age.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil || params.DB == nil || params.Repository == nil {
		return nil, errors.New("outbox retention job needs a logger, db and repository")
	}
	if params.Retention <= 0 {
		params.Retention = defaultOutboxRetention
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &outboxRetentionJob{params}, nil
}

type outboxRetentionJob struct {
	OutboxRetentionJobParams
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.Now().UTC().Add(-j.Retention)
	var pruned int64
	if err := j.DB.WithTx(ctx, func(tx *gorm.DB) (err error) {
		pruned, err = j.Repository.DeletePublishedBefore(ctx, tx, cutoff)
		return err
	}); err != nil {
		return fmt.Errorf("outbox retention: %w", err)
	}
	j.Logger.Info(j.Logger.WithFields(ctx, map[string]any{
		"cutoff": cutoff,
		"pruned": pruned,
	}), "outbox retention pass complete")
	return nil
}

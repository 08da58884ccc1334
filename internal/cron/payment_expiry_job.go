package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/hopl-labs/hopl-backend/pkg/logger"
)

const defaultPendingPaymentTTL = 48 * time.Hour

type PaymentExpiryJobParams struct {
	Logger     *logger.Logger
	Repository pendingPaymentRepo
	TTL        time.Duration
}

type pendingPaymentRepo interface {
	ExpirePendingBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// NewPaymentExpiryJob fails checkout payments that stayed PENDING past ttl.
func NewPaymentExpiryJob(params PaymentExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("payment repository required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultPendingPaymentTTL
	}
	return &paymentExpiryJob{
		logg: params.Logger,
		repo: params.Repository,
		ttl:  ttl,
		now:  time.Now,
	}, nil
}

type paymentExpiryJob struct {
	logg *logger.Logger
	repo pendingPaymentRepo
	ttl  time.Duration
	now  func() time.Time
}

func (j *paymentExpiryJob) Name() string { return "payment-expiry" }

func (j *paymentExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	expired, err := j.repo.ExpirePendingBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("expire pending payments: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":        cutoff,
		"rows_affected": expired,
	})
	j.logg.Info(logCtx, "pending payments expired")
	return nil
}

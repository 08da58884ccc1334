package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/hopl-labs/hopl-backend/pkg/logger"
)

const defaultStalledGenerationAfter = 15 * time.Minute

type GenerationRecoveryJobParams struct {
	Logger    *logger.Logger
	Recoverer stalledGenerationRecoverer
	After     time.Duration
}

type stalledGenerationRecoverer interface {
	RecoverStalled(ctx context.Context, olderThan time.Duration) (int, error)
}

// NewGenerationRecoveryJob fails generation attempts abandoned mid-flight, for
// example by a crashed API instance, and refunds the credit they charged.
func NewGenerationRecoveryJob(params GenerationRecoveryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Recoverer == nil {
		return nil, fmt.Errorf("generation recoverer required")
	}
	after := params.After
	if after <= 0 {
		after = defaultStalledGenerationAfter
	}
	return &generationRecoveryJob{
		logg:      params.Logger,
		recoverer: params.Recoverer,
		after:     after,
	}, nil
}

type generationRecoveryJob struct {
	logg      *logger.Logger
	recoverer stalledGenerationRecoverer
	after     time.Duration
}

func (j *generationRecoveryJob) Name() string { return "generation-recovery" }

func (j *generationRecoveryJob) Run(ctx context.Context) error {
	recovered, err := j.recoverer.RecoverStalled(ctx, j.after)
	if err != nil {
		return fmt.Errorf("recover stalled generations: %w", err)
	}
	if recovered == 0 {
		j.logg.Debug(ctx, "no stalled generations")
		return nil
	}
	j.logg.Warn(j.logg.WithField(ctx, "recovered", recovered), "stalled generations failed and refunded")
	return nil
}

package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/hopl-labs/hopl-backend/pkg/logger"
)

type fakeRecoverer struct {
	olderThan time.Duration
	recovered int
	err       error
}

func (f *fakeRecoverer) RecoverStalled(ctx context.Context, olderThan time.Duration) (int, error) {
	f.olderThan = olderThan
	return f.recovered, f.err
}

func TestGenerationRecoveryJob(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	recoverer := &fakeRecoverer{recovered: 2}
	job, err := NewGenerationRecoveryJob(GenerationRecoveryJobParams{Logger: logg, Recoverer: recoverer})
	if err != nil {
		t.Fatalf("NewGenerationRecoveryJob: %v", err)
	}
	if job.Name() != "generation-recovery" {
		t.Fatalf("unexpected name %q", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if recoverer.olderThan != defaultStalledGenerationAfter {
		t.Fatalf("expected default threshold, got %s", recoverer.olderThan)
	}

	failing := &fakeRecoverer{err: errors.New("boom")}
	job, err = NewGenerationRecoveryJob(GenerationRecoveryJobParams{Logger: logg, Recoverer: failing, After: time.Minute})
	if err != nil {
		t.Fatalf("NewGenerationRecoveryJob: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if failing.olderThan != time.Minute {
		t.Fatalf("expected configured threshold, got %s", failing.olderThan)
	}
}

package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hopl-labs/hopl-backend/pkg/logger"
	"github.com/hopl-labs/hopl-backend/pkg/metrics"
)

type fakeLock struct {
	held     bool
	releases int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.held = false
	f.releases++
	return nil
}

type testJob struct {
	name  string
	err   error
	panic bool
	runs  int
	seen  time.Time
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(ctx context.Context) error {
	t.runs++
	t.seen, _ = ctx.Deadline()
	if t.panic {
		panic("boom")
	}
	return t.err
}

func newTestService(t *testing.T, lock Lock, reg prometheus.Registerer, jobs ...Job) *Service {
	t.Helper()
	registry, err := NewRegistry(jobs...)
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Logger:     logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard}),
		Registry:   registry,
		Lock:       lock,
		Metrics:    metrics.NewWorkerMetrics(reg),
		JobTimeout: time.Minute,
	})
	require.NoError(t, err)
	return svc
}

func TestRunCycleRunsEveryJobDespiteFailures(t *testing.T) {
	ok := &testJob{name: "payment-expiry"}
	failing := &testJob{name: "outbox-retention", err: errors.New("db down")}
	panicking := &testJob{name: "generation-recovery", panic: true}
	reg := prometheus.NewRegistry()
	lock := &fakeLock{}
	svc := newTestService(t, lock, reg, panicking, failing, ok)

	report, err := svc.runCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.ran)
	assert.ElementsMatch(t, []string{"outbox-retention", "generation-recovery"}, report.failed)
	for _, job := range []*testJob{ok, failing, panicking} {
		assert.Equal(t, 1, job.runs, job.name)
		assert.False(t, job.seen.IsZero(), "job %s ran without a deadline", job.name)
	}
	assert.Equal(t, 1, lock.releases)
	assert.False(t, lock.held)

	assert.Equal(t, 1.0, counterValue(t, reg, "hopl_worker_items_processed_total", "payment-expiry"))
	assert.Equal(t, 1.0, counterValue(t, reg, "hopl_worker_items_failed_total", "generation-recovery"))
}

func TestRunCycleSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "payment-expiry"}
	svc := newTestService(t, &fakeLock{held: true}, nil, job)

	report, err := svc.runCycle(context.Background())
	require.NoError(t, err)
	assert.True(t, report.skipped)
	assert.Zero(t, job.runs)
}

func TestRunStopsOnCancel(t *testing.T) {
	job := &testJob{name: "payment-expiry"}
	svc := newTestService(t, &fakeLock{}, nil, job)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := svc.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, job.runs, "a canceled context must not start jobs")
}

func TestNewServiceRequiresLock(t *testing.T) {
	_, err := NewService(ServiceParams{Logger: logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})})
	assert.Error(t, err)
}

func counterValue(t *testing.T, reg *prometheus.Registry, name, worker string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "worker" && lp.GetValue() == worker {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

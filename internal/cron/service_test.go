package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/angelmondragon/bazaar-backend/pkg/logger"
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
	every time.Duration
	runs  int
}

func (t *testJob) Name() string         { return t.name }
func (t *testJob) Every() time.Duration { return t.every }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

func newTestService(t *testing.T, lock Lock, clock func() time.Time, jobs ...Job) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test"}),
		Registry: NewRegistry(jobs...),
		Lock:     lock,
		Clock:    clock,
	})
	require.NoError(t, err)
	return svc
}

func TestRunCycleRunsAllJobsEvenOnFailure(t *testing.T) {
	ok := &testJob{name: "success"}
	first := &testJob{name: "fail-a", err: errors.New("boom")}
	second := &testJob{name: "fail-b", err: errors.New("bang")}
	lock := &fakeLock{}
	svc := newTestService(t, lock, nil, first, ok, second)

	err := svc.runCycle(context.Background())
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)
	assert.Equal(t, 1, ok.runs)
	assert.Equal(t, 1, first.runs)
	assert.Equal(t, 1, second.runs)
	assert.Equal(t, 1, lock.releases)
	assert.False(t, lock.held)
}

func TestRunCycleSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "skipped"}
	svc := newTestService(t, &fakeLock{held: true}, nil, job)

	require.NoError(t, svc.runCycle(context.Background()))
	assert.Zero(t, job.runs)
}

func TestRunCycleHonoursJobPeriod(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	hourly := &testJob{name: "hourly", every: time.Hour}
	always := &testJob{name: "always"}
	svc := newTestService(t, &fakeLock{}, clock, hourly, always)
	ctx := context.Background()

	require.NoError(t, svc.runCycle(ctx))
	now = now.Add(10 * time.Minute)
	require.NoError(t, svc.runCycle(ctx))
	assert.Equal(t, 1, hourly.runs)
	assert.Equal(t, 2, always.runs)

	now = now.Add(time.Hour)
	require.NoError(t, svc.runCycle(ctx))
	assert.Equal(t, 2, hourly.runs)
	assert.Equal(t, 3, always.runs)
}

func TestNewServiceRequiresLock(t *testing.T) {
	_, err := NewService(ServiceParams{Logger: logger.New(logger.Options{ServiceName: "cron-test"})})
	require.Error(t, err)
}

type panicJob struct{}

func (panicJob) Name() string              { return "boom" }
func (panicJob) Run(context.Context) error { panic("nil map") }

func TestRunCycleRecoversPanickingJob(t *testing.T) {
	after := &testJob{name: "after"}
	lock := &fakeLock{}
	svc := newTestService(t, lock, time.Now, panicJob{}, after)

	err := svc.runCycle(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom: panic: nil map")
	assert.Equal(t, 1, after.runs)
	assert.Equal(t, 1, lock.releases)
}

package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/bazaar-backend/internal/orders"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test"})
}

type stubSweeper struct {
	deleted int64
	err     error
	calls   int
}

func (s *stubSweeper) SweepExpired(context.Context) (int64, error) {
	s.calls++
	return s.deleted, s.err
}

func TestSessionSweepJob(t *testing.T) {
	sweeper := &stubSweeper{deleted: 4}
	job, err := NewSessionSweepJob(testLogger(), sweeper, time.Minute)
	require.NoError(t, err)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, sweeper.calls)
	assert.Equal(t, time.Minute, job.Every())

	sweeper.err = errors.New("db down")
	assert.Error(t, job.Run(context.Background()))
}

type stubReconciler struct {
	cutoff time.Time
	limit  int
	report orders.ReconcileReport
	err    error
}

func (s *stubReconciler) ReconcilePending(_ context.Context, cutoff time.Time, limit int) (orders.ReconcileReport, error) {
	s.cutoff = cutoff
	s.limit = limit
	return s.report, s.err
}

func TestPaymentReconcileJobUsesPendingWindow(t *testing.T) {
	reconciler := &stubReconciler{report: orders.ReconcileReport{Checked: 3, Paid: 1, Failed: 2}}
	job, err := NewPaymentReconcileJob(PaymentReconcileJobParams{
		Logger:       testLogger(),
		Orders:       reconciler,
		PendingAfter: 45 * time.Minute,
		BatchSize:    25,
	})
	require.NoError(t, err)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, now.Add(-45*time.Minute), reconciler.cutoff)
	assert.Equal(t, 25, reconciler.limit)

	reconciler.err = errors.New("gateway down")
	assert.Error(t, job.Run(context.Background()))
}

func TestPaymentReconcileJobRequiresWindow(t *testing.T) {
	_, err := NewPaymentReconcileJob(PaymentReconcileJobParams{Logger: testLogger(), Orders: &stubReconciler{}})
	assert.Error(t, err)
}

type stubOutboxRepo struct {
	cutoff  time.Time
	deleted int64
	err     error
}

func (s *stubOutboxRepo) DeletePublishedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.cutoff = cutoff
	return s.deleted, s.err
}

func TestOutboxRetentionJob(t *testing.T) {
	repo := &stubOutboxRepo{deleted: 12}
	job, err := NewOutboxRetentionJob(testLogger(), repo, 7)
	require.NoError(t, err)
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, now.AddDate(0, 0, -7), repo.cutoff)
	assert.Equal(t, 24*time.Hour, job.Every())

	repo.err = errors.New("boom")
	assert.Error(t, job.Run(context.Background()))
}

func TestOutboxRetentionJobDefaultsWindow(t *testing.T) {
	job, err := NewOutboxRetentionJob(testLogger(), &stubOutboxRepo{}, 0)
	require.NoError(t, err)
	assert.Equal(t, outboxRetentionDays, job.retention)
}

package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/bazaar-backend/internal/orders"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

type sessionSweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// SessionSweepJob deletes checkout sessions past their TTL.
type SessionSweepJob struct {
	logg     *logger.Logger
	sessions sessionSweeper
	every    time.Duration
}

func NewSessionSweepJob(logg *logger.Logger, sessions sessionSweeper, every time.Duration) (*SessionSweepJob, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("checkout service required")
	}
	return &SessionSweepJob{logg: logg, sessions: sessions, every: every}, nil
}

func (j *SessionSweepJob) Name() string         { return "checkout-session-sweep" }
func (j *SessionSweepJob) Every() time.Duration { return j.every }

func (j *SessionSweepJob) Run(ctx context.Context) error {
	deleted, err := j.sessions.SweepExpired(ctx)
	if err != nil {
		return err
	}
	j.logg.Info(j.logg.WithField(ctx, "rows_deleted", deleted), "expired checkout sessions swept")
	return nil
}

type pendingReconciler interface {
	ReconcilePending(ctx context.Context, cutoff time.Time, limit int) (orders.ReconcileReport, error)
}

// PaymentReconcileJobParams configure the pending payment sweep.
type PaymentReconcileJobParams struct {
	Logger       *logger.Logger
	Orders       pendingReconciler
	PendingAfter time.Duration
	BatchSize    int
	Every        time.Duration
}

// PaymentReconcileJob settles orders left pending past the payment window.
type PaymentReconcileJob struct {
	logg         *logger.Logger
	orders       pendingReconciler
	pendingAfter time.Duration
	batchSize    int
	every        time.Duration
	now          func() time.Time
}

func NewPaymentReconcileJob(params PaymentReconcileJobParams) (*PaymentReconcileJob, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if params.PendingAfter <= 0 {
		return nil, fmt.Errorf("pending window must be positive")
	}
	return &PaymentReconcileJob{
		logg:         params.Logger,
		orders:       params.Orders,
		pendingAfter: params.PendingAfter,
		batchSize:    params.BatchSize,
		every:        params.Every,
		now:          time.Now,
	}, nil
}

func (j *PaymentReconcileJob) Name() string         { return "payment-reconcile" }
func (j *PaymentReconcileJob) Every() time.Duration { return j.every }

func (j *PaymentReconcileJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.pendingAfter)
	report, err := j.orders.ReconcilePending(ctx, cutoff, j.batchSize)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":  cutoff,
		"checked": report.Checked,
		"paid":    report.Paid,
		"failed":  report.Failed,
		"skipped": report.Skipped,
	})
	j.logg.Info(logCtx, "pending payments reconciled")
	return err
}

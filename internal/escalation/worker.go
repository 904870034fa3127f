package escalation

import (
	"context"
	"time"

	"github.com/voxloop/feedback-platform/pkg/logging"
)

// Scanner is the slice of the engine the worker drives.
type Scanner interface {
	Scan(ctx context.Context, accountID string, now time.Time) (int, error)
}

// AccountSource lists the accounts that have SLA policies configured.
type AccountSource interface {
	ListAccountIDs(ctx context.Context) ([]string, error)
}

// Worker runs periodic SLA scans across all accounts. Each account is scanned
// under a per-account lock so overlapping workers skip accounts already being
// scanned instead of doubling the load.
type Worker struct {
	engine   Scanner
	accounts AccountSource
	lock     ScanLock
	logger   *logging.Logger
	interval time.Duration
	lockTTL  time.Duration
}

// WorkerParams collects Worker dependencies.
type WorkerParams struct {
	Engine   Scanner
	Accounts AccountSource
	Lock     ScanLock
	Logger   *logging.Logger
	Interval time.Duration
	LockTTL  time.Duration
}

// NewWorker creates a scan worker.
func NewWorker(p WorkerParams) *Worker {
	if p.Engine == nil || p.Accounts == nil {
		panic("escalation: engine and accounts are required")
	}
	if p.Lock == nil {
		p.Lock = NoopScanLock{}
	}
	if p.Logger == nil {
		p.Logger = logging.Default()
	}
	if p.Interval <= 0 {
		p.Interval = 2 * time.Minute
	}
	if p.LockTTL <= 0 {
		p.LockTTL = 5 * time.Minute
	}
	return &Worker{
		engine:   p.Engine,
		accounts: p.Accounts,
		lock:     p.Lock,
		logger:   p.Logger.WithComponent("sla_worker"),
		interval: p.Interval,
		lockTTL:  p.LockTTL,
	}
}

// Start blocks, scanning all accounts every interval until ctx is canceled.
// The first pass runs immediately.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("sla scan worker started", "interval", w.interval.String())
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.RunOnce(ctx, time.Now())
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("sla scan worker stopping")
			return
		case <-ticker.C:
			w.RunOnce(ctx, time.Now())
		}
	}
}

// RunOnce scans every account a single time. Account failures are logged and
// the pass continues; only context cancellation stops it early.
func (w *Worker) RunOnce(ctx context.Context, now time.Time) {
	accounts, err := w.accounts.ListAccountIDs(ctx)
	if err != nil {
		w.logger.Error("scan pass: listing accounts failed", "error", err)
		return
	}
	for _, accountID := range accounts {
		if ctx.Err() != nil {
			return
		}
		w.scanAccount(ctx, accountID, now)
	}
}

func (w *Worker) scanAccount(ctx context.Context, accountID string, now time.Time) {
	release, ok, err := w.lock.Acquire(ctx, accountID, w.lockTTL)
	if err != nil {
		w.logger.Error("scan pass: lock acquire failed", "account_id", accountID, "error", err)
		return
	}
	if !ok {
		w.logger.Debug("scan pass: account locked by another worker, skipping", "account_id", accountID)
		return
	}
	defer release()

	opened, err := w.engine.Scan(ctx, accountID, now)
	if err != nil {
		w.logger.Error("scan pass: account scan failed", "account_id", accountID, "error", err)
		return
	}
	if opened > 0 {
		w.logger.Info("scan pass: escalations opened", "account_id", accountID, "count", opened)
	}
}

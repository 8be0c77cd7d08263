package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/bank-scrapers/internal/auth"
	"github.com/Checker-Finance/bank-scrapers/internal/metrics"
	"github.com/Checker-Finance/bank-scrapers/pkg/model"
)

// AccountSource discovers configured accounts and resolves their logins.
type AccountSource interface {
	DiscoverAccounts(ctx context.Context, company model.CompanyID) ([]string, error)
	Resolve(ctx context.Context, company model.CompanyID, account string) (model.Credentials, error)
	Forget(company model.CompanyID, account string)
}

// Runner performs one authenticated scrape, renewing the token if needed.
type Runner interface {
	Run(ctx context.Context, creds model.Credentials, opts model.ScrapeOptions) (*model.RunState, error)
}

// TransactionSink persists transactions and sync checkpoints.
type TransactionSink interface {
	SaveTransactions(ctx context.Context, company model.CompanyID, accountName string, accounts []model.Account) (int, error)
	GetCheckpoint(ctx context.Context, company model.CompanyID, accountName string) (*model.SyncCheckpoint, error)
	SetCheckpoint(ctx context.Context, cp model.SyncCheckpoint) error
}

// EventPublisher announces scraped transactions downstream.
type EventPublisher interface {
	PublishTransactionsScraped(ctx context.Context, company model.CompanyID, accountName string, startDate time.Time, accounts []model.Account) error
}

// ResultReporter prints the dump and renewed tokens for the operator.
type ResultReporter interface {
	Report(result *model.ScrapeResult) error
	ReportToken(token string) error
}

// SyncOptions tunes a SyncRunner.
type SyncOptions struct {
	Companies           []model.CompanyID
	Interval            time.Duration // 0 runs a single pass
	Lookback            time.Duration // start date offset when an account has no checkpoint
	StartDate           time.Time     // overrides checkpoints when set
	CombineInstallments bool
	ShowBrowser         bool
}

// SyncRunner pulls every configured account of every company, strictly one
// account at a time.
type SyncRunner struct {
	logger    *zap.Logger
	accounts  AccountSource
	runner    Runner
	sink      TransactionSink // optional
	publisher EventPublisher  // optional
	reporter  ResultReporter
	opts      SyncOptions
	now       func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once

	mu   sync.RWMutex
	last PassStatus
}

// PassStatus summarises the most recent completed pass.
type PassStatus struct {
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Synced     int       `json:"synced"`
	Failed     int       `json:"failed"`
	Error      string    `json:"error,omitempty"`
}

// NewSyncRunner constructs the job. sink and publisher may be nil.
func NewSyncRunner(
	logger *zap.Logger,
	accounts AccountSource,
	runner Runner,
	sink TransactionSink,
	publisher EventPublisher,
	reporter ResultReporter,
	opts SyncOptions,
) *SyncRunner {
	if len(opts.Companies) == 0 {
		opts.Companies = model.Companies
	}
	return &SyncRunner{
		logger:    logger,
		accounts:  accounts,
		runner:    runner,
		sink:      sink,
		publisher: publisher,
		reporter:  reporter,
		opts:      opts,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
}

// Start runs one pass immediately, then one per interval until stopped. With a
// zero interval it returns after the first pass.
func (r *SyncRunner) Start(ctx context.Context) error {
	err := r.RunOnce(ctx)
	if r.opts.Interval <= 0 {
		return err
	}

	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()

	r.logger.Info("sync_runner.started", zap.Duration("interval", r.opts.Interval))

	for {
		select {
		case <-ticker.C:
			if err := r.RunOnce(ctx); err != nil {
				r.logger.Warn("sync_runner.pass_failed", zap.Error(err))
			}
		case <-r.stopCh:
			r.logger.Info("sync_runner.stopped (manual stop)")
			return nil
		case <-ctx.Done():
			r.logger.Info("sync_runner.stopped (context canceled)")
			return nil
		}
	}
}

// Stop halts a running Start loop. Safe to call more than once.
func (r *SyncRunner) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// RunOnce syncs every account once. A failing account does not stop the pass;
// all failures are joined into the returned error.
func (r *SyncRunner) RunOnce(ctx context.Context) error {
	start := r.now()
	r.logger.Info("sync_runner.running")

	var errs []error
	synced := 0
	for _, company := range r.opts.Companies {
		names, err := r.accounts.DiscoverAccounts(ctx, company)
		if err != nil {
			metrics.IncError("sync", "discover_failed")
			errs = append(errs, err)
			continue
		}
		for _, name := range names {
			if err := ctx.Err(); err != nil {
				return errors.Join(append(errs, err)...)
			}
			if err := r.syncAccount(ctx, company, name); err != nil {
				r.logger.Error("sync_runner.account_failed",
					zap.String("company", string(company)),
					zap.String("account", name),
					zap.Error(err))
				errs = append(errs, fmt.Errorf("%s/%s: %w", company, name, err))
				continue
			}
			synced++
		}
	}

	joined := errors.Join(errs...)
	finished := r.now()
	r.recordPass(PassStatus{StartedAt: start, FinishedAt: finished, Synced: synced, Failed: len(errs)}, joined)

	r.logger.Info("sync_runner.done",
		zap.Int("synced", synced),
		zap.Int("failed", len(errs)),
		zap.Duration("duration", finished.Sub(start)))
	return joined
}

func (r *SyncRunner) recordPass(st PassStatus, err error) {
	if err != nil {
		st.Error = err.Error()
	}
	r.mu.Lock()
	r.last = st
	r.mu.Unlock()
}

// LastPass returns the outcome of the latest finished pass. ok is false before
// the first pass completes.
func (r *SyncRunner) LastPass() (PassStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last, !r.last.FinishedAt.IsZero()
}

func (r *SyncRunner) syncAccount(ctx context.Context, company model.CompanyID, name string) error {
	creds, err := r.accounts.Resolve(ctx, company, name)
	if err != nil {
		metrics.IncError("sync", "resolve_failed")
		return err
	}

	startDate, err := r.startDate(ctx, company, name)
	if err != nil {
		return err
	}

	opts := model.ScrapeOptions{
		CompanyID:           company,
		StartDate:           startDate,
		CombineInstallments: r.opts.CombineInstallments,
		ShowBrowser:         r.opts.ShowBrowser,
	}
	state, err := r.runner.Run(ctx, creds, opts)
	if state != nil && state.RenewedToken != "" {
		// Never stored; the operator updates the secret by hand.
		if rerr := r.reporter.ReportToken(state.RenewedToken); rerr != nil {
			return rerr
		}
	}
	if err != nil {
		if auth.KindOf(err) == auth.KindAuthentication {
			r.accounts.Forget(company, name)
		}
		metrics.IncError("sync", auth.KindOf(err).String())
		return err
	}

	result := state.Last
	if err := r.reporter.Report(result); err != nil {
		return err
	}

	count := result.TransactionCount()
	metrics.AddTransactions(string(company), count)
	metrics.SetLastScrape(string(company), r.now())

	if r.sink != nil {
		inserted, err := r.sink.SaveTransactions(ctx, company, name, result.Accounts)
		if err != nil {
			return err
		}
		r.logger.Info("sync_runner.transactions_saved",
			zap.String("company", string(company)),
			zap.String("account", name),
			zap.Int("scraped", count),
			zap.Int("inserted", inserted))
	}

	if r.publisher != nil {
		if err := r.publisher.PublishTransactionsScraped(ctx, company, name, startDate, result.Accounts); err != nil {
			r.logger.Warn("sync_runner.nats_publish_failed", zap.Error(err))
		}
	}

	if r.sink != nil {
		cp := model.SyncCheckpoint{
			Company:          company,
			AccountName:      name,
			LastScrapedAt:    r.now().UTC(),
			StartDate:        startDate,
			TransactionCount: count,
		}
		if err := r.sink.SetCheckpoint(ctx, cp); err != nil {
			r.logger.Warn("sync_runner.checkpoint_failed", zap.Error(err))
		}
	}
	return nil
}

// startDate resumes a day before the last checkpoint so late-posted
// transactions are picked up; the store drops the duplicates.
func (r *SyncRunner) startDate(ctx context.Context, company model.CompanyID, name string) (time.Time, error) {
	if !r.opts.StartDate.IsZero() {
		return r.opts.StartDate, nil
	}
	fallback := truncateDay(r.now().Add(-r.opts.Lookback))
	if r.sink == nil {
		return fallback, nil
	}
	cp, err := r.sink.GetCheckpoint(ctx, company, name)
	if err != nil {
		r.logger.Warn("sync_runner.checkpoint_read_failed", zap.Error(err))
		return fallback, nil
	}
	if cp == nil || cp.LastScrapedAt.IsZero() {
		return fallback, nil
	}
	return truncateDay(cp.LastScrapedAt.AddDate(0, 0, -1)), nil
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

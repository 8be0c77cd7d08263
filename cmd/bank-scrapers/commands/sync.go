package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Checker-Finance/bank-scrapers/internal/api"
	"github.com/Checker-Finance/bank-scrapers/internal/auth"
	"github.com/Checker-Finance/bank-scrapers/internal/jobs"
	"github.com/Checker-Finance/bank-scrapers/internal/otp"
	"github.com/Checker-Finance/bank-scrapers/internal/publisher"
	"github.com/Checker-Finance/bank-scrapers/internal/rabbitmq"
	"github.com/Checker-Finance/bank-scrapers/internal/report"
	internalsecrets "github.com/Checker-Finance/bank-scrapers/internal/secrets"
	"github.com/Checker-Finance/bank-scrapers/internal/store"
	"github.com/Checker-Finance/bank-scrapers/pkg/config"
	"github.com/Checker-Finance/bank-scrapers/pkg/model"
	"github.com/Checker-Finance/bank-scrapers/pkg/secrets"
	"github.com/Checker-Finance/bank-scrapers/pkg/utils"
)

// AccountSourceFactory builds the account source for the sync job. The returned
// stop func releases background resources.
type AccountSourceFactory func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (jobs.AccountSource, func(), error)

var errSecretsDisabled = errors.New("sync reads accounts from AWS Secrets Manager; set SECRETS_ENABLED=true")

// NewAWSAccountSource resolves accounts from AWS Secrets Manager with an
// in-memory TTL cache.
func NewAWSAccountSource(ctx context.Context, cfg *config.Config, logger *zap.Logger) (jobs.AccountSource, func(), error) {
	if !cfg.SecretsEnabled {
		return nil, nil, auth.UsageError("sync", errSecretsDisabled)
	}

	provider, err := secrets.NewAWSProvider(ctx, cfg.AWSRegion)
	if err != nil {
		return nil, nil, fmt.Errorf("create AWS Secrets Manager provider: %w", err)
	}

	cache := secrets.NewCache[model.Credentials](cfg.CacheTTL)
	stopCleaner := make(chan struct{})
	go cache.StartCleaner(cfg.CleanupFreq, stopCleaner)

	resolver := internalsecrets.NewAccountResolver(logger, cfg.Env, provider, cache)
	return resolver, func() { close(stopCleaner) }, nil
}

func newSyncCmd(env *Env) *cobra.Command {
	var (
		interval  time.Duration
		startArg  string
		listen    string
		companies []string
	)

	cmd := &cobra.Command{
		Use:   "sync [--interval <duration>] [--start-date <YYYY-MM-DD>] [--company <id>...]",
		Short: "Scrapes every account configured in the secrets manager, persisting and publishing the results.",
		Args:  positional(),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := jobs.SyncOptions{
				Interval:            interval,
				Lookback:            env.Config.SyncLookback,
				CombineInstallments: env.Config.CombineInstallments,
				ShowBrowser:         env.Config.ShowBrowser,
			}
			if startArg != "" {
				start, err := parseStartDate(startArg)
				if err != nil {
					return err
				}
				opts.StartDate = start
			}
			for _, c := range companies {
				id, err := model.ParseCompanyID(c)
				if err != nil {
					return auth.UsageError("company", err)
				}
				opts.Companies = append(opts.Companies, id)
			}
			return runSync(cmd.Context(), env, opts, listen)
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", env.Config.SyncInterval, "Repeat the sync on this interval; 0 runs once.")
	cmd.Flags().StringVar(&startArg, "start-date", "", "Scrape from this date instead of each account's checkpoint.")
	cmd.Flags().StringVar(&listen, "listen", env.Config.HTTPListenAddr, "Serve /health, /metrics and /sync/status on this address.")
	cmd.Flags().StringSliceVar(&companies, "company", nil, "Limit the sync to these companies (default all).")
	return cmd
}

func runSync(ctx context.Context, env *Env, opts jobs.SyncOptions, listen string) error {
	cfg := env.Config
	log := env.Logger

	checks := map[string]api.HealthCheck{}

	accounts, stopAccounts, err := env.NewAccountSource(ctx, cfg, log)
	if err != nil {
		return err
	}
	if stopAccounts != nil {
		defer stopAccounts()
	}

	var sink jobs.TransactionSink
	if cfg.RedisAddr != "" || cfg.DatabaseURL != "" {
		log.Info("store.connecting",
			zap.String("redis", cfg.RedisAddr),
			zap.String("dsn", utils.MaskDSN(cfg.DatabaseURL)))
		st, err := store.NewHybrid(cfg.RedisAddr, cfg.RedisDB, cfg.RedisPass, cfg.DatabaseURL, store.PGPoolConfig{
			MaxConns:          int32(cfg.PGMaxConns),
			MinConns:          int32(cfg.PGMinConns),
			MaxConnLifetime:   cfg.PGMaxConnLifetime,
			MaxConnIdleTime:   cfg.PGMaxConnIdleTime,
			HealthCheckPeriod: cfg.PGHealthCheckPeriod,
		}, log)
		if err != nil {
			return fmt.Errorf("init store: %w", err)
		}
		defer st.Close() //nolint:errcheck
		sink = st
		checks["store"] = st.HealthCheck
	}

	var outbound publisher.Fanout
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL, nats.Name(cfg.ServiceName))
		if err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		p, err := publisher.New(nc, cfg.OutboundSubject, cfg.ServiceName)
		if err != nil {
			nc.Close()
			return fmt.Errorf("init publisher: %w", err)
		}
		defer p.Close()
		outbound = append(outbound, p)
		checks["nats"] = func(context.Context) error {
			if !nc.IsConnected() {
				return errors.New("disconnected")
			}
			return nc.FlushTimeout(time.Second)
		}
	}
	if cfg.AMQPURL != "" {
		rp, err := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRoutingKey, cfg.ServiceName, log)
		if err != nil {
			return err
		}
		defer rp.Close() //nolint:errcheck
		outbound = append(outbound, rp)
	}
	var pub jobs.EventPublisher
	if len(outbound) > 0 {
		pub = outbound
	}

	prompt := otp.NewPrompt(env.In, env.Err)
	ctrl := auth.NewSessionController(log, env.NewEngine(cfg, log), prompt)

	runner := jobs.NewSyncRunner(log, accounts, ctrl, sink, pub, report.NewReporter(env.Out), opts)

	if listen != "" {
		app := fiber.New(fiber.Config{DisableStartupMessage: true})
		api.RegisterRoutes(app, checks, runner)
		go func() {
			log.Info("http.listening", zap.String("addr", listen))
			if err := app.Listen(listen); err != nil {
				log.Error("fiber.listen_failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := app.ShutdownWithContext(shutdownCtx); err != nil {
				log.Warn("fiber.shutdown_failed", zap.Error(err))
			}
		}()
	}

	return runner.Start(ctx)
}

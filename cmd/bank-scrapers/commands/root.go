package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Checker-Finance/bank-scrapers/internal/auth"
	"github.com/Checker-Finance/bank-scrapers/internal/engine"
	"github.com/Checker-Finance/bank-scrapers/internal/metrics"
	"github.com/Checker-Finance/bank-scrapers/internal/rate"
	"github.com/Checker-Finance/bank-scrapers/pkg/config"
	"github.com/Checker-Finance/bank-scrapers/pkg/logger"
)

// Env carries everything a command needs. It is built once per process.
type Env struct {
	Config *config.Config
	Logger *zap.Logger
	In     io.Reader
	Out    io.Writer // transaction dump and tokens
	Err    io.Writer // OTP prompt and error messages

	NewEngine        func(cfg *config.Config, logger *zap.Logger) engine.Client
	NewAccountSource AccountSourceFactory
}

// NewRootCommand builds the command tree around env.
func NewRootCommand(env *Env) *cobra.Command {
	root := &cobra.Command{
		Use:           "bank-scrapers",
		Short:         "bank-scrapers pulls transaction histories from Israeli banking portals.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(env.In)
	root.SetOut(env.Out)
	root.SetErr(env.Err)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return auth.UsageError("flags", err)
	})

	root.AddCommand(
		newOneZeroCmd(env),
		newOneZeroTokenCmd(env),
		newIsracardCmd(env),
		newMaxCmd(env),
		newHapoalimCmd(env),
		newSyncCmd(env),
	)
	return root
}

// ExecuteContext runs the CLI against the process environment and returns the
// exit code.
func ExecuteContext(ctx context.Context) int {
	cfg := config.Load()
	logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	defer logger.Sync()

	env := &Env{
		Config:           cfg,
		Logger:           logger.L(),
		In:               os.Stdin,
		Out:              os.Stdout,
		Err:              os.Stderr,
		NewEngine:        NewBridgeClient,
		NewAccountSource: NewAWSAccountSource,
	}

	err := NewRootCommand(env).ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(env.Err, "scraping failed for the following reason: %v\n", err)
	}

	pushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if perr := metrics.Push(pushCtx, cfg.PushGatewayURL, cfg.ServiceName); perr != nil {
		env.Logger.Warn("metrics.push_failed", zap.Error(perr))
	}

	return auth.ExitCode(err)
}

// NewBridgeClient connects to the engine sidecar described by cfg.
func NewBridgeClient(cfg *config.Config, logger *zap.Logger) engine.Client {
	rateMgr := rate.NewManager(rate.Config{
		RequestsPerSecond: cfg.EngineRatePerSec,
		Burst:             cfg.EngineRateBurst,
		Cooldown:          time.Second,
	})
	return engine.NewBridge(logger, engine.BridgeConfig{
		WSURL:       cfg.EngineWSURL,
		HTTPURL:     cfg.EngineHTTPURL,
		HTTPTimeout: cfg.EngineHTTPTimeout,
		RetryMax:    cfg.EngineRetryMax,
	}, rateMgr)
}

// positional requires exactly the named arguments and reports a usage error
// listing them otherwise.
func positional(names ...string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != len(names) {
			return auth.UsageError(cmd.Name(), fmt.Errorf("expected %d arguments <%s>, got %d",
				len(names), strings.Join(names, "> <"), len(args)))
		}
		return nil
	}
}

// parseStartDate accepts a calendar date (2006-01-02) or an RFC 3339 timestamp.
func parseStartDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, auth.UsageError("start date", fmt.Errorf("invalid start date %q, want YYYY-MM-DD", s))
}

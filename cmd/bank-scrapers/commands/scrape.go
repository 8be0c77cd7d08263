package commands

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Checker-Finance/bank-scrapers/internal/auth"
	"github.com/Checker-Finance/bank-scrapers/internal/metrics"
	"github.com/Checker-Finance/bank-scrapers/internal/otp"
	"github.com/Checker-Finance/bank-scrapers/internal/report"
	"github.com/Checker-Finance/bank-scrapers/pkg/model"
)

func newOneZeroCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "onezero <email> <password> <otpLongTermToken> <phoneNumber> <startDate>",
		Short: "Scrapes oneZero, renewing the long-term token through an OTP prompt if it expired.",
		Args:  positional("email", "password", "otpLongTermToken", "phoneNumber", "startDate"),
		RunE: func(cmd *cobra.Command, args []string) error {
			creds := model.Credentials{
				Email:            args[0],
				Password:         args[1],
				OTPLongTermToken: args[2],
				PhoneNumber:      auth.NormalizePhoneNumber(args[3]),
			}
			return runScrape(cmd, env, model.CompanyOneZero, creds, args[4])
		},
	}
}

func newIsracardCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "isracard <id> <card6Digits> <password> <startDate>",
		Short: "Scrapes an Isracard account.",
		Args:  positional("id", "card6Digits", "password", "startDate"),
		RunE: func(cmd *cobra.Command, args []string) error {
			creds := model.Credentials{ID: args[0], Card6Digits: args[1], Password: args[2]}
			return runScrape(cmd, env, model.CompanyIsracard, creds, args[3])
		},
	}
}

func newMaxCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "max <username> <password> <startDate>",
		Short: "Scrapes a Max account.",
		Args:  positional("username", "password", "startDate"),
		RunE: func(cmd *cobra.Command, args []string) error {
			creds := model.Credentials{Username: args[0], Password: args[1]}
			return runScrape(cmd, env, model.CompanyMax, creds, args[2])
		},
	}
}

func newHapoalimCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "hapoalim <userCode> <password> <startDate>",
		Short: "Scrapes a Bank Hapoalim account.",
		Args:  positional("userCode", "password", "startDate"),
		RunE: func(cmd *cobra.Command, args []string) error {
			creds := model.Credentials{UserCode: args[0], Password: args[1]}
			return runScrape(cmd, env, model.CompanyHapoalim, creds, args[2])
		},
	}
}

// runScrape performs one controller run and prints the outcome. A renewed
// token is printed even if the retry scrape then fails, so it is not lost.
func runScrape(cmd *cobra.Command, env *Env, company model.CompanyID, creds model.Credentials, startArg string) error {
	start, err := parseStartDate(startArg)
	if err != nil {
		return err
	}

	opts := model.ScrapeOptions{
		CompanyID:           company,
		StartDate:           start,
		CombineInstallments: env.Config.CombineInstallments,
		ShowBrowser:         env.Config.ShowBrowser,
	}

	prompt := otp.NewPrompt(env.In, env.Err)
	ctrl := auth.NewSessionController(env.Logger, env.NewEngine(env.Config, env.Logger), prompt)
	reporter := report.NewReporter(env.Out)

	began := time.Now()
	state, runErr := ctrl.Run(cmd.Context(), creds, opts)
	if state != nil && state.RenewedToken != "" {
		if err := reporter.ReportToken(state.RenewedToken); err != nil {
			return err
		}
	}
	if runErr != nil {
		metrics.IncError("cli", auth.KindOf(runErr).String())
		return runErr
	}

	if err := reporter.Report(state.Last); err != nil {
		return err
	}

	count := state.Last.TransactionCount()
	metrics.AddTransactions(string(company), count)
	metrics.SetLastScrape(string(company), time.Now())
	env.Logger.Info("scrape.completed",
		zap.String("company", string(company)),
		zap.Int("accounts", len(state.Last.Accounts)),
		zap.Int("transactions", count),
		zap.Int("attempts", state.Attempts),
		zap.Duration("duration", time.Since(began)))
	return nil
}

package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Checker-Finance/bank-scrapers/internal/auth"
	"github.com/Checker-Finance/bank-scrapers/internal/otp"
)

func newOneZeroTokenCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "onezero-token <phoneNumber>",
		Short: "Sends an OTP to the phone and prints a fresh oneZero long-term token.",
		Long: "Triggers oneZero two-factor authentication for the phone number, reads the SMS code " +
			"from stdin and prints the long-term token on stdout. Nothing is scraped.",
		Args: positional("phoneNumber"),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := otp.NewPrompt(env.In, env.Err)
			ctrl := auth.NewSessionController(env.Logger, env.NewEngine(env.Config, env.Logger), prompt)

			token, err := ctrl.MintToken(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(env.Out, token)
			return err
		},
	}
}

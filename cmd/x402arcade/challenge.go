package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"github.com/x402arcade/x402-go"
)

func newChallengeCmd(_ *rootOptions) *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   "challenge [resource]",
		Short: "Print the 402 challenge for a resource",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadPaymentConfig(os.Getenv)
			if err != nil {
				return err
			}
			resource := "/api/games/snake/start"
			if len(args) == 1 {
				resource = args[0]
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(x402.BuildPaymentRequired(cfg, resource, description))
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "Description shown to the payer (defaults to GAME_DESCRIPTION)")
	return cmd
}

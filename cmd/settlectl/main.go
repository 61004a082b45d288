// Command settlectl calls the settlement operator endpoints.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "settlectl",
		Short:         "Operator CLI for the settlement API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if opts.token == "" {
				opts.token = os.Getenv("SETTLECTL_TOKEN")
			}
			if opts.token == "" {
				return fmt.Errorf("a bearer token is required (--token or SETTLECTL_TOKEN)")
			}
			if opts.output != outputJSON && opts.output != outputYAML {
				return fmt.Errorf("unsupported output %q (json or yaml)", opts.output)
			}
			opts.command = cmd.CommandPath()
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.baseURL, "base-url", "http://localhost:8080", "Settlement API base URL")
	flags.StringVar(&opts.token, "token", "", "Bearer token (default $SETTLECTL_TOKEN)")
	flags.StringVar(&opts.actor, "actor", os.Getenv("USER"), "Operator name recorded in the audit log")
	flags.StringVarP(&opts.output, "output", "o", outputJSON, "Output format (json, yaml)")

	rootCmd.AddCommand(
		newReconCommand(opts),
		newPayoutCommand(opts),
		newTransferCommand(opts),
		newSLACommand(opts),
		newRetentionCommand(opts),
	)
	return rootCmd
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newReconCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recon",
		Short: "Reconciliation runs and issues",
	}
	cmd.AddCommand(
		newReconRunCommand(opts),
		newReconShowCommand(opts),
		newReconIssuesCommand(opts),
	)
	return cmd
}

func newReconRunCommand(opts *options) *cobra.Command {
	var reason, outputPath, key string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a reconciliation pass now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if key == "" {
				key = "settlectl:" + uuid.NewString()
			}
			body := map[string]string{"reason": reason}
			if outputPath != "" {
				body["outputPath"] = outputPath
			}
			return opts.run(cmd, request{
				method:         http.MethodPost,
				path:           "/internal/v1/ops/reconciliation/run",
				body:           body,
				idempotencyKey: key,
			})
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Why the run is requested (recorded in the audit log)")
	cmd.Flags().StringVar(&outputPath, "output-path", "", "Report file name inside the server's output directory")
	cmd.Flags().StringVar(&key, "idempotency-key", "", "Idempotency key (default: a random uuid)")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func newReconShowCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show <runId>",
		Short: "Show a reconciliation run and its issues",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, request{
				method: http.MethodGet,
				path:   "/internal/v1/ops/reconciliation/runs/" + url.PathEscape(args[0]),
			})
		},
	}
}

func newReconIssuesCommand(opts *options) *cobra.Command {
	var since string
	var limit int

	cmd := &cobra.Command{
		Use:   "issues",
		Short: "List recent reconciliation issues",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{}
			if since != "" {
				if _, err := time.Parse(time.RFC3339, since); err != nil {
					return fmt.Errorf("--since must be an RFC3339 timestamp: %w", err)
				}
				q.Set("since", since)
			}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			path := "/internal/v1/ops/reconciliation/issues"
			if len(q) > 0 {
				path += "?" + q.Encode()
			}
			return opts.run(cmd, request{method: http.MethodGet, path: path})
		},
	}

	cmd.Flags().StringVar(&since, "since", "", "Only issues detected at or after this RFC3339 time")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of issues (server default 200)")
	return cmd
}

func newPayoutCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payout",
		Short: "Payout instructions",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show <payoutId>",
		Short: "Show a payout instruction and its status history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, request{
				method: http.MethodGet,
				path:   "/internal/v1/payouts/" + url.PathEscape(args[0]),
			})
		},
	})
	return cmd
}

func newTransferCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Transfers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show <transferId>",
		Short: "Show a transfer and its transitions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, request{
				method: http.MethodGet,
				path:   "/v1/transfers/" + url.PathEscape(args[0]),
			})
		},
	})
	return cmd
}

func newSLACommand(opts *options) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "sla",
		Short: "Payout service level reports",
	}
	breaches := &cobra.Command{
		Use:   "breaches",
		Short: "List payouts initiated later than the SLA after funding",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := "/internal/v1/ops/sla/breaches"
			if limit > 0 {
				path += "?limit=" + strconv.Itoa(limit)
			}
			return opts.run(cmd, request{method: http.MethodGet, path: path})
		},
	}
	breaches.Flags().IntVar(&limit, "limit", 0, "Maximum number of rows (server default 200)")
	cmd.AddCommand(breaches)
	return cmd
}

func newRetentionCommand(opts *options) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "retention",
		Short: "History retention",
	}
	run := &cobra.Command{
		Use:   "run",
		Short: "Prune expired audit and reconciliation history now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd, request{
				method: http.MethodPost,
				path:   "/internal/v1/ops/jobs/retention/run",
				body:   map[string]string{"reason": reason},
			})
		},
	}
	run.Flags().StringVar(&reason, "reason", "", "Why the run is requested (recorded in the audit log)")
	_ = run.MarkFlagRequired("reason")
	cmd.AddCommand(run)
	return cmd
}

func (o *options) run(cmd *cobra.Command, req request) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out, err := o.call(ctx, req)
	if err != nil {
		return err
	}
	return o.render(cmd.OutOrStdout(), out)
}

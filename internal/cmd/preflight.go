package cmd

import (
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/nimbusfs/internal/observability"
	"github.com/3leaps/nimbusfs/pkg/output"
	"github.com/3leaps/nimbusfs/pkg/preflight"
)

var preflightCmd = &cobra.Command{
	Use:   "preflight <uri>",
	Short: "Probe permissions and capabilities",
	Long: `Probe what the current credentials may do in a bucket before running
a long job. Emits one nimbusfs.preflight.v1 record.

Modes:
  plan-only    no provider calls
  read-safe    head bucket, list, head, list multipart uploads
  write-probe  read-safe plus one write under --probe-prefix, cleaned up

Examples:
  nimbusfs preflight s3://bucket/data/ --mode plan-only
  nimbusfs preflight s3://bucket/data/
  nimbusfs preflight s3://bucket/ --mode write-probe --probe-strategy put-delete`,
	Args: cobra.ExactArgs(1),
	RunE: runPreflight,
}

var (
	preflightMode          string
	preflightProbeStrategy string
	preflightProbePrefix   string
)

func init() {
	rootCmd.AddCommand(preflightCmd)

	preflightCmd.Flags().StringVar(&preflightMode, "mode", string(preflight.ModeReadSafe), "Preflight mode (plan-only|read-safe|write-probe)")
	preflightCmd.Flags().StringVar(&preflightProbeStrategy, "probe-strategy", string(preflight.ProbeMultipartAbort), "Write probe strategy (multipart-abort|put-delete)")
	preflightCmd.Flags().StringVar(&preflightProbePrefix, "probe-prefix", preflight.DefaultProbePrefix, "Probe prefix for write probes")
}

func runPreflight(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	parsed, err := ParseURI(args[0])
	if err != nil {
		observability.CLILogger.Error("Invalid URI", zap.String("uri", args[0]), zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Invalid URI", err)
	}

	spec := preflight.Spec{
		Mode:          preflight.Mode(preflightMode),
		ProbeStrategy: preflight.ProbeStrategy(preflightProbeStrategy),
		ProbePrefix:   preflightProbePrefix,
		Prefix:        parsed.Key,
	}
	switch spec.Mode {
	case preflight.ModePlanOnly, preflight.ModeReadSafe, preflight.ModeWriteProbe:
	default:
		return exitError(foundry.ExitInvalidArgument, "Invalid --mode value", fmt.Errorf("unsupported preflight mode: %s", preflightMode))
	}
	switch spec.ProbeStrategy {
	case preflight.ProbeMultipartAbort, preflight.ProbePutDelete:
	default:
		return exitError(foundry.ExitInvalidArgument, "Invalid --probe-strategy value", fmt.Errorf("unsupported probe strategy: %s", preflightProbeStrategy))
	}
	if spec.Mode == preflight.ModeWriteProbe {
		if err := requireWritable("write-probe preflight"); err != nil {
			return err
		}
	}

	w := newWriter(cmd.OutOrStdout(), parsed)
	defer func() { _ = w.Close() }()

	// Plan-only must not create a client or reach an endpoint.
	if spec.Mode == preflight.ModePlanOnly {
		rec, _ := preflight.Run(ctx, nil, spec)
		return w.WritePreflight(ctx, rec)
	}

	client, err := newClient(ctx, parsed)
	if err != nil {
		observability.CLILogger.Error("Failed to create provider", zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to connect to storage provider", err)
	}
	defer func() { _ = client.Close() }()

	rec, pfErr := preflight.Run(ctx, client, spec)
	if rec != nil {
		if err := w.WritePreflight(ctx, rec); err != nil {
			return err
		}
	}
	if pfErr != nil {
		if rec != nil {
			observability.CLILogger.Warn("Preflight denied", zap.Strings("capabilities", preflightDenied(rec)))
		}
		return exitError(foundry.ExitExternalServiceUnavailable, "Preflight failed", pfErr)
	}
	return nil
}

func preflightDenied(rec *output.PreflightRecord) []string {
	var denied []string
	for _, r := range rec.Results {
		if !r.Allowed {
			denied = append(denied, r.Capability)
		}
	}
	return denied
}

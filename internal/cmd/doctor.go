package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/nimbusfs/internal/config"
	"github.com/3leaps/nimbusfs/internal/observability"
)

var doctorProvider string

// imdsTimeout bounds the instance metadata probe; off EC2 it never answers.
const imdsTimeout = 2 * time.Second

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Run diagnostic checks on the environment and configuration and
suggest fixes for common issues.

Examples:
  nimbusfs doctor                # Environment and configuration
  nimbusfs doctor --provider s3  # Also check AWS credentials and region`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().StringVar(&doctorProvider, "provider", "", "Run provider-specific checks (s3|file; default: configured backend)")
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	log := observability.CLILogger
	cfg := currentConfig()

	prov := doctorProvider
	if prov == "" {
		prov = cfg.Backend
	}

	log.Info("=== " + binaryName + " doctor ===")
	log.Info("Running diagnostic checks...")

	allChecks := true
	checkNum := 1
	totalChecks := 4
	switch prov {
	case config.BackendS3:
		totalChecks += 3
	case config.BackendFile:
		totalChecks++
	}

	goVersion := runtime.Version()
	if goVersion >= "go1.25" {
		log.Info(fmt.Sprintf("[%d/%d] Checking Go runtime... ✅ %s", checkNum, totalChecks, goVersion),
			zap.String("go_version", goVersion))
	} else {
		log.Warn(fmt.Sprintf("[%d/%d] Checking Go runtime... ⚠️  %s (built for go1.25+)", checkNum, totalChecks, goVersion),
			zap.String("go_version", goVersion))
		allChecks = false
	}
	checkNum++

	configDir, err := os.UserConfigDir()
	if err != nil {
		log.Error(fmt.Sprintf("[%d/%d] Checking config directory... ❌ Cannot find config directory", checkNum, totalChecks),
			zap.Error(err))
		return exitError(foundry.ExitFileNotFound, "Cannot find config directory", err)
	}
	log.Info(fmt.Sprintf("[%d/%d] Checking config directory... ✅ %s", checkNum, totalChecks, configDir),
		zap.String("config_dir", configDir))
	checkNum++

	log.Info(fmt.Sprintf("[%d/%d] Checking configuration... ✅ backend=%s", checkNum, totalChecks, cfg.Backend),
		zap.String("backend", cfg.Backend),
		zap.Duration("retry_max_duration", cfg.Retry.MaxDuration),
		zap.Int("active_limit", cfg.Tasks.ActiveLimit),
		zap.Bool("readonly", IsReadOnly()))
	checkNum++

	log.Info(fmt.Sprintf("[%d/%d] Checking environment... ✅ %s/%s", checkNum, totalChecks, runtime.GOOS, runtime.GOARCH),
		zap.String("os", runtime.GOOS),
		zap.String("arch", runtime.GOARCH))
	checkNum++

	switch prov {
	case config.BackendS3:
		allChecks = runS3Checks(cmd.Context(), cfg, checkNum, totalChecks) && allChecks
	case config.BackendFile:
		allChecks = runFileChecks(cfg, checkNum, totalChecks) && allChecks
	default:
		return exitError(foundry.ExitInvalidArgument, "Invalid --provider value", fmt.Errorf("%w: %s", ErrUnsupportedProvider, prov))
	}

	if allChecks {
		log.Info("✅ All checks passed! Your " + binaryName + " installation is healthy.")
	} else {
		log.Warn("⚠️  Some checks failed. Review the output above for details.")
	}
	log.Info("=== End Diagnostics ===")
	return nil
}

// runS3Checks checks credentials and where the region comes from.
func runS3Checks(ctx context.Context, cfg *config.Config, checkNum, totalChecks int) bool {
	log := observability.CLILogger
	log.Info("S3 Provider Checks:")

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.S3.Profile))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		log.Error(fmt.Sprintf("[%d/%d] Checking AWS credentials... ❌ Cannot load AWS config", checkNum, totalChecks),
			zap.Error(err))
		printAWSCredentialsHelp()
		return false
	}

	creds, err := awsCfg.Credentials.Retrieve(ctx)
	if err != nil {
		log.Error(fmt.Sprintf("[%d/%d] Checking AWS credentials... ❌ Cannot retrieve credentials", checkNum, totalChecks),
			zap.Error(err))
		printAWSCredentialsHelp()
		return false
	}
	source := creds.Source
	if source == "" {
		source = "unknown"
	}
	log.Info(fmt.Sprintf("[%d/%d] Checking AWS credentials... ✅ Found credentials", checkNum, totalChecks),
		zap.String("access_key", maskAccessKey(creds.AccessKeyID)),
		zap.String("credential_source", source))
	checkNum++

	region, regionSource := resolveDoctorRegion(ctx, cfg.S3.Region, awsCfg)
	if region == "" {
		log.Warn(fmt.Sprintf("[%d/%d] Checking region... ⚠️  No region configured", checkNum, totalChecks))
		log.Info("  Set s3.region, " + config.EnvPrefix + "_S3_REGION, AWS_REGION or pass --region")
		return false
	}
	log.Info(fmt.Sprintf("[%d/%d] Checking region... ✅ %s", checkNum, totalChecks, region),
		zap.String("region", region),
		zap.String("region_source", regionSource))
	checkNum++

	endpoint := cfg.S3.Endpoint
	if endpoint == "" {
		endpoint = "aws default"
	}
	log.Info(fmt.Sprintf("[%d/%d] Checking endpoint... ✅ %s", checkNum, totalChecks, endpoint),
		zap.Bool("force_path_style", cfg.S3.ForcePathStyle))
	return true
}

// regionProber asks instance metadata for the region. Tests replace it.
var regionProber = func(ctx context.Context, awsCfg aws.Config) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, imdsTimeout)
	defer cancel()
	out, err := imds.NewFromConfig(awsCfg).GetRegion(ctx, &imds.GetRegionInput{})
	if err != nil {
		return "", err
	}
	return out.Region, nil
}

// resolveDoctorRegion reports the region S3 calls will use and where it
// came from: configuration, the AWS shared config, or instance metadata.
func resolveDoctorRegion(ctx context.Context, configured string, awsCfg aws.Config) (string, string) {
	if configured != "" {
		return configured, "nimbusfs config"
	}
	if awsCfg.Region != "" {
		return awsCfg.Region, "aws config"
	}
	region, err := regionProber(ctx, awsCfg)
	if err != nil || region == "" {
		observability.CLILogger.Debug("Instance metadata region unavailable", zap.Error(err))
		return "", ""
	}
	return region, "instance metadata"
}

// runFileChecks verifies the base directory for file:// URIs.
func runFileChecks(cfg *config.Config, checkNum, totalChecks int) bool {
	log := observability.CLILogger
	root := cfg.File.Root
	if root == "" {
		log.Warn(fmt.Sprintf("[%d/%d] Checking file root... ⚠️  file.root is not set", checkNum, totalChecks))
		log.Info("  Set file.root, " + config.EnvPrefix + "_FILE_ROOT or pass --root")
		return false
	}
	st, err := os.Stat(root)
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.Error(fmt.Sprintf("[%d/%d] Checking file root... ❌ %s does not exist", checkNum, totalChecks, root))
		return false
	case err != nil:
		log.Error(fmt.Sprintf("[%d/%d] Checking file root... ❌ Cannot read %s", checkNum, totalChecks, root), zap.Error(err))
		return false
	case !st.IsDir():
		log.Error(fmt.Sprintf("[%d/%d] Checking file root... ❌ %s is not a directory", checkNum, totalChecks, root))
		return false
	}
	log.Info(fmt.Sprintf("[%d/%d] Checking file root... ✅ %s", checkNum, totalChecks, root), zap.String("root", root))
	return true
}

// maskAccessKey masks all but the last 4 characters of an access key.
func maskAccessKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

// printAWSCredentialsHelp prints help for configuring AWS credentials.
func printAWSCredentialsHelp() {
	log := observability.CLILogger
	log.Info("To configure AWS credentials:")
	log.Info("  1. Set AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY environment variables, or")
	log.Info("  2. Run 'aws configure' to set up a profile and pass --profile, or")
	log.Info("  3. Use an IAM role when running on AWS infrastructure")
	log.Info("For S3-compatible storage (MinIO, moto, etc.), also pass --endpoint.")
}

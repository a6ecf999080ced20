package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nelssec/sastscan/internal/archive"
	"github.com/nelssec/sastscan/internal/asoc"
	"github.com/nelssec/sastscan/internal/config"
	"github.com/nelssec/sastscan/internal/credentials"
	"github.com/nelssec/sastscan/internal/host"
	"github.com/nelssec/sastscan/internal/irx"
	"github.com/nelssec/sastscan/internal/logging"
	"github.com/nelssec/sastscan/internal/output"
	"github.com/nelssec/sastscan/internal/pipeline"
)

var (
	Version   = "1.0.0"
	BuildTime = "unknown"
)

// depsFactory builds the pipeline collaborators once settings are known.
type depsFactory func(cfg *config.Config) (pipeline.Dependencies, error)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr, newDependencies)
	stop()
	os.Exit(code)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer, factory depsFactory) int {
	rootCmd := newRootCmd(stdout, stderr, factory)
	rootCmd.SetArgs(args)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}

func newRootCmd(stdout, stderr io.Writer, factory depsFactory) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sastscan <credentials_file> <app> [flags]",
		Short: "Static analysis scan automation for HCL AppScan on Cloud",
		Long: `sastscan packages a source directory into an IRX file with SAClientUtil,
submits it to AppScan on Cloud for static analysis, waits for the scan to finish
and saves the scan summary (<scan>_result.json) and report (<scan>_report.html).

app is the ID or name of the ASoC application to associate the scan with.`,
		Example: `  sastscan creds.json "My App" -t ./src -s nightly
  sastscan creds.json 6c1d1e5e-9d57-4e0b-9f4c-1f2b3c4d5e6f --json`,
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, args, stdout, factory)
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.SetHelpTemplate(rootCmd.HelpTemplate() + "\nFile format for credentials file: " + credentials.Usage + "\n")

	flags := rootCmd.Flags()
	flags.StringP("config", "c", "", "Path to AppScan config XML file. Not required if it resides in the target directory")
	flags.StringP("scan", "s", pipeline.DefaultScanName, "Scan name for the ASoC portal")
	flags.StringP("target", "t", "", "Directory to scan (default: working directory)")
	flags.String("settings", "", "settings file (default: ~/.config/sastscan/config.yaml)")
	flags.String("base-url", "", "ASoC base URL")
	flags.Duration("poll-interval", 0, "How often to check scan status (default 1m)")
	flags.Duration("timeout", 0, "Give up waiting for the scan after this long (default: no limit)")
	flags.String("report-format", "", "Report format: html, pdf, xml (default html)")
	flags.String("appscan", "", "Path to the SAClientUtil appscan executable (default: search PATH)")
	flags.String("log-format", "", "Log format: text or json")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.Bool("json", false, "Output as JSON (for automation)")
	flags.BoolP("quiet", "q", false, "Suppress progress output")
	flags.BoolP("verbose", "v", false, "Verbose logging")

	rootCmd.AddCommand(newVersionCmd(stdout))
	return rootCmd
}

func runScan(cmd *cobra.Command, args []string, stdout io.Writer, factory depsFactory) error {
	settingsFile, _ := cmd.Flags().GetString("settings")
	configPath, _ := cmd.Flags().GetString("config")
	scanName, _ := cmd.Flags().GetString("scan")
	target, _ := cmd.Flags().GetString("target")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	quiet, _ := cmd.Flags().GetBool("quiet")
	verbose, _ := cmd.Flags().GetBool("verbose")
	quiet = quiet || jsonOutput

	start := time.Now()
	// setupFailed reports an error raised before the pipeline starts, as a
	// JSON result when --json is set.
	setupFailed := func(err error) error {
		stepErr := &pipeline.StepError{State: pipeline.StateValidating, Err: err}
		if jsonOutput {
			result := &pipeline.Result{
				State:     pipeline.StateAborted,
				FailedAt:  pipeline.StateValidating,
				StartTime: start,
				EndTime:   time.Now(),
				Error:     err.Error(),
			}
			if err := output.PrintJSON(stdout, result); err != nil {
				return err
			}
		}
		return stepErr
	}

	cfg, err := config.Load(settingsFile, cmd.Flags())
	if err != nil {
		return setupFailed(err)
	}
	if err := cfg.Validate(); err != nil {
		return setupFailed(err)
	}

	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	logger := logging.New(cmd.ErrOrStderr(), cfg.Log.Format, level)
	ctx := logging.WithLogger(cmd.Context(), logger)

	progress := func(format string, a ...any) {
		if !quiet {
			fmt.Fprintf(stdout, format, a...)
		}
	}

	progress("=== Setup ===\nProcessing Args\n")
	in, err := validateInputs(args[0], configPath, target)
	if err != nil {
		return setupFailed(err)
	}
	progress("API Key successfully loaded from credentials file.\n")

	if in.target != "" {
		if err := os.Chdir(in.target); err != nil {
			return setupFailed(fmt.Errorf("failed to change to target directory: %w", err))
		}
	}
	cwd, err := os.Getwd()
	if err != nil {
		return setupFailed(err)
	}
	progress("Changed working directory to target directory:\n%s\n", cwd)
	host.Preflight(ctx, cwd)

	deps, err := factory(cfg)
	if err != nil {
		return setupFailed(err)
	}

	opts := pipeline.Options{
		Credentials:  in.creds,
		App:          args[1],
		ScanName:     scanName,
		ConfigPath:   in.configPath,
		PollInterval: cfg.ASoC.PollInterval,
		Timeout:      cfg.ASoC.Timeout,
		ReportFormat: cfg.ASoC.ReportFormat,
		Quiet:        quiet,
	}

	result, runErr := pipeline.New(deps, stdout).Run(ctx, opts)

	if jsonOutput {
		if err := output.PrintJSON(stdout, result); err != nil {
			return err
		}
		return runErr
	}

	output.PrintTable(stdout, result)
	if runErr != nil {
		return runErr
	}
	fmt.Fprintln(stdout, "=== Static Scan Automation Complete ===")
	return nil
}

type inputs struct {
	creds      credentials.Credentials
	configPath string
	target     string
}

// validateInputs checks every user supplied path before anything changes.
// configPath and target come back absolute so they survive the chdir.
func validateInputs(credsPath, configPath, target string) (*inputs, error) {
	creds, err := credentials.Load(credsPath)
	if err != nil {
		return nil, err
	}
	in := &inputs{creds: creds}

	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return nil, fmt.Errorf("config file %s does not exist", configPath)
		}
		if in.configPath, err = filepath.Abs(configPath); err != nil {
			return nil, err
		}
	}

	if target != "" {
		info, err := os.Stat(target)
		if err != nil || !info.IsDir() {
			return nil, fmt.Errorf("target directory {%s} not found", target)
		}
		if in.target, err = filepath.Abs(target); err != nil {
			return nil, err
		}
	}

	return in, nil
}

// asocService adapts the REST client to the pipeline's Service.
type asocService struct {
	client *asoc.Client
}

func (s asocService) Login(ctx context.Context, creds credentials.Credentials) (pipeline.Session, error) {
	session, err := s.client.Login(ctx, creds.KeyID, creds.KeySecret)
	if err != nil {
		return nil, err
	}
	return session, nil
}

func newDependencies(cfg *config.Config) (pipeline.Dependencies, error) {
	util, err := irx.DetectClientUtil(cfg.Packaging.AppScanPath)
	if err != nil {
		return pipeline.Dependencies{}, err
	}

	client := asoc.New(asoc.Options{
		BaseURL:        cfg.ASoC.BaseURL,
		Locale:         cfg.ASoC.Locale,
		RequestTimeout: cfg.ASoC.RequestTimeout,
		UserAgent:      "sastscan/" + Version,
	})

	deps := pipeline.Dependencies{
		Service:  asocService{client: client},
		Packager: util,
	}

	if cfg.StorageEnabled() {
		store, err := archive.New(archive.Options{
			Endpoint:  cfg.Storage.Endpoint,
			Region:    cfg.Storage.Region,
			Bucket:    cfg.Storage.Bucket,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
		})
		if err != nil {
			return pipeline.Dependencies{}, err
		}
		deps.Uploader = store
	}

	return deps, nil
}

func newVersionCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(stdout, "sastscan version %s\n", Version)
			fmt.Fprintf(stdout, "Build time: %s\n", BuildTime)

			util, err := irx.DetectClientUtil("")
			if err != nil {
				fmt.Fprintf(stdout, "SAClientUtil: %v\n", err)
				return
			}
			fmt.Fprintf(stdout, "SAClientUtil: %s\n", util.Name())
		},
	}
}

// Package pipeline runs one static analysis scan from login to report
// download. Steps run strictly in order and the first failure ends the run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/nelssec/sastscan/internal/asoc"
	"github.com/nelssec/sastscan/internal/logging"
)

const (
	DefaultScanName     = "Static_Scan"
	DefaultPollInterval = time.Minute
	DefaultReportFormat = "html"
)

type Pipeline struct {
	deps Dependencies
	out  io.Writer
}

// New returns a Pipeline that prints step progress to out.
func New(deps Dependencies, out io.Writer) *Pipeline {
	if out == nil {
		out = io.Discard
	}
	return &Pipeline{deps: deps, out: out}
}

// Run executes the scan. On failure the returned Result is still populated up
// to the failed state, and the error is a *StepError. The session, once
// opened, is closed on every return path.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Result, error) {
	opts = withDefaults(opts)

	result := &Result{
		RunID:     uuid.NewString(),
		State:     StateLoggingIn,
		StartTime: time.Now(),
	}
	logger := logging.FromContext(ctx).With("run_id", result.RunID)
	ctx = logging.WithLogger(ctx, logger)

	p.banner(opts, "Step 1: Login to ASoC")
	session, err := p.deps.Service.Login(ctx, opts.Credentials)
	if err == nil && session == nil {
		err = errors.New("service returned no session")
	}
	if err != nil {
		return p.abort(result, fmt.Errorf("could not login to ASoC, check the API key: %w", err))
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("Failed to close ASoC session", "error", err)
		} else {
			logger.Debug("ASoC session closed")
		}
	}()
	p.printf(opts, "Logged in successfully\n")

	result.State = StateResolvingApp
	p.banner(opts, "Step 2: Verify the App Exists")
	app, err := session.FindApplication(ctx, opts.App)
	if err == nil && app == nil {
		err = asoc.ErrApplicationNotFound
	}
	if err != nil {
		return p.abort(result, fmt.Errorf("could not find app %q, verify the app name or id in the ASoC portal: %w", opts.App, err))
	}
	result.App = app
	p.printf(opts, "Application Found: Name [%s] Id [%s]\n", app.Name, app.ID)

	result.State = StatePackagingSource
	p.banner(opts, "Step 3: Generate the IRX File")
	archive, err := p.deps.Packager.Prepare(ctx, opts.ScanName, opts.ConfigPath)
	if err == nil && archive == nil {
		err = errors.New("packager returned no archive")
	}
	if err != nil {
		return p.abort(result, fmt.Errorf("generating IRX file: %w", err))
	}
	result.ScanName = archive.Name
	result.IRXFile = archive.Path
	p.printf(opts, "IRX File Generated: %s\n", archive.Path)

	result.State = StateSubmitting
	p.banner(opts, "Step 4: Submit IRX File to ASoC for Analysis")
	scanID, err := session.Submit(ctx, archive.Path, archive.Name, app.ID)
	if err == nil && scanID == "" {
		err = errors.New("service returned an empty scan id")
	}
	if err != nil {
		return p.abort(result, fmt.Errorf("submitting IRX file: %w", err))
	}
	result.ScanID = scanID
	p.printf(opts, "Scan Created: %s\n", scanID)

	result.State = StatePolling
	p.banner(opts, "Step 5: Wait for the scan to complete")
	status, err := p.wait(ctx, session, scanID, opts)
	result.ScanStatus = status
	if err != nil {
		return p.abort(result, fmt.Errorf("waiting for scan to finish: %w", err))
	}
	if status != asoc.StatusReady {
		return p.abort(result, fmt.Errorf("%w: reason - %s", ErrScanNotReady, status))
	}
	p.printf(opts, "Scan is Complete (status='%s')\n", status)

	outDir := filepath.Dir(archive.Path)

	result.State = StateFetchingSummary
	p.banner(opts, "Step 6: Retrieve Scan Results and Save to File")
	summaryFile := filepath.Join(outDir, archive.Name+"_result.json")
	summary, err := session.FetchSummary(ctx, scanID, summaryFile)
	if err == nil && summary == nil {
		err = errors.New("service returned no summary")
	}
	if err != nil {
		return p.abort(result, fmt.Errorf("getting the scan summary: %w", err))
	}
	result.Summary = summary
	result.SummaryFile = summaryFile
	p.printf(opts, "Saved Scan Summary JSON File: %s\n", summaryFile)

	result.State = StateFetchingReport
	p.banner(opts, "Step 7: Download Report")
	reportFile := filepath.Join(outDir, archive.Name+"_report."+opts.ReportFormat)
	if err := session.FetchReport(ctx, scanID, reportFile, opts.ReportFormat); err != nil {
		return p.abort(result, fmt.Errorf("downloading report: %w", err))
	}
	result.ReportFile = reportFile
	p.printf(opts, "Report Downloaded and saved to %s\n", reportFile)

	if p.deps.Uploader != nil {
		result.State = StateArchiving
		p.banner(opts, "Step 8: Archive Results")
		urls, err := p.deps.Uploader.Upload(ctx, archive.Name, summaryFile, reportFile)
		result.ArchiveURLs = urls
		if err != nil {
			return p.abort(result, fmt.Errorf("archiving results: %w", err))
		}
		for _, u := range urls {
			p.printf(opts, "Uploaded %s\n", u)
		}
	}

	result.State = StateDone
	result.EndTime = time.Now()
	logger.Info("Static scan automation complete", "scan_id", scanID, "duration", result.EndTime.Sub(result.StartTime).Round(time.Second))
	return result, nil
}

// wait polls the scan, bounded by opts.Timeout when set.
func (p *Pipeline) wait(ctx context.Context, session Session, scanID string, opts Options) (string, error) {
	waitCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	status, err := session.WaitForCompletion(waitCtx, scanID, opts.PollInterval)
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return status, fmt.Errorf("scan %s still running after %s: %w", scanID, opts.Timeout, err)
	}
	return status, err
}

func (p *Pipeline) abort(result *Result, err error) (*Result, error) {
	stepErr := &StepError{State: result.State, Err: err}
	result.Error = err.Error()
	result.FailedAt = result.State
	result.State = StateAborted
	result.EndTime = time.Now()
	return result, stepErr
}

func (p *Pipeline) banner(opts Options, title string) {
	p.printf(opts, "\n=== %s ===\n", title)
}

func (p *Pipeline) printf(opts Options, format string, args ...any) {
	if opts.Quiet {
		return
	}
	fmt.Fprintf(p.out, format, args...)
}

func withDefaults(opts Options) Options {
	if opts.ScanName == "" {
		opts.ScanName = DefaultScanName
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.ReportFormat == "" {
		opts.ReportFormat = DefaultReportFormat
	}
	return opts
}

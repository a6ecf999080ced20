package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nelssec/sastscan/internal/asoc"
	"github.com/nelssec/sastscan/internal/credentials"
	"github.com/nelssec/sastscan/internal/irx"
)

type State string

const (
	StateValidating      State = "Validating"
	StateLoggingIn       State = "LoggingIn"
	StateResolvingApp    State = "ResolvingApp"
	StatePackagingSource State = "PackagingSource"
	StateSubmitting      State = "Submitting"
	StatePolling         State = "Polling"
	StateFetchingSummary State = "FetchingSummary"
	StateFetchingReport  State = "FetchingReport"
	StateArchiving       State = "Archiving"
	StateDone            State = "Done"
	StateAborted         State = "Aborted"
)

var ErrScanNotReady = errors.New("scan did not finish successfully")

// StepError is a failure of one pipeline state. Every failure is terminal.
type StepError struct {
	State State
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.State, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Service opens authenticated sessions on the scanning service.
type Service interface {
	Login(ctx context.Context, creds credentials.Credentials) (Session, error)
}

// Session is the set of remote calls made on behalf of one run. Close must be
// safe to call more than once.
type Session interface {
	FindApplication(ctx context.Context, identifier string) (*asoc.Application, error)
	Submit(ctx context.Context, irxPath, scanName, appID string) (string, error)
	WaitForCompletion(ctx context.Context, scanID string, interval time.Duration) (string, error)
	FetchSummary(ctx context.Context, scanID, dest string) (*asoc.ScanSummary, error)
	FetchReport(ctx context.Context, scanID, dest, format string) error
	Close() error
}

type Packager interface {
	Prepare(ctx context.Context, scanName, configPath string) (*irx.Archive, error)
}

type Uploader interface {
	Upload(ctx context.Context, prefix string, files ...string) ([]string, error)
}

type Dependencies struct {
	Service  Service
	Packager Packager
	// Uploader is optional.
	Uploader Uploader
}

type Options struct {
	Credentials  credentials.Credentials
	App          string
	ScanName     string
	ConfigPath   string
	PollInterval time.Duration
	// Timeout bounds the wait for the remote scan. Zero waits indefinitely.
	Timeout      time.Duration
	ReportFormat string
	Quiet        bool
}

type Result struct {
	RunID       string            `json:"run_id"`
	State       State             `json:"state"`
	FailedAt    State             `json:"failed_at,omitempty"`
	App         *asoc.Application `json:"app,omitempty"`
	ScanName    string            `json:"scan_name,omitempty"`
	ScanID      string            `json:"scan_id,omitempty"`
	IRXFile     string            `json:"irx_file,omitempty"`
	ScanStatus  string            `json:"scan_status,omitempty"`
	Summary     *asoc.ScanSummary `json:"summary,omitempty"`
	SummaryFile string            `json:"summary_file,omitempty"`
	ReportFile  string            `json:"report_file,omitempty"`
	ArchiveURLs []string          `json:"archive_urls,omitempty"`
	StartTime   time.Time         `json:"start_time"`
	EndTime     time.Time         `json:"end_time"`
	Error       string            `json:"error,omitempty"`
}

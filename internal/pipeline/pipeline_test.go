package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nelssec/sastscan/internal/asoc"
	"github.com/nelssec/sastscan/internal/credentials"
	"github.com/nelssec/sastscan/internal/irx"
)

type fakeService struct {
	session  *fakeSession
	loginErr error
	logins   int
}

func (f *fakeService) Login(ctx context.Context, creds credentials.Credentials) (Session, error) {
	f.logins++
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return f.session, nil
}

type fakeSession struct {
	app       *asoc.Application
	findErr   error
	status    string
	waitErr   error
	waitBlock bool
	reportErr error

	calls  []string
	closes int
}

func (s *fakeSession) FindApplication(ctx context.Context, identifier string) (*asoc.Application, error) {
	s.calls = append(s.calls, "find:"+identifier)
	return s.app, s.findErr
}

func (s *fakeSession) Submit(ctx context.Context, irxPath, scanName, appID string) (string, error) {
	s.calls = append(s.calls, "submit:"+filepath.Base(irxPath)+":"+scanName+":"+appID)
	return "scan-1", nil
}

func (s *fakeSession) WaitForCompletion(ctx context.Context, scanID string, interval time.Duration) (string, error) {
	s.calls = append(s.calls, "wait:"+scanID)
	if s.waitBlock {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return s.status, s.waitErr
}

func (s *fakeSession) FetchSummary(ctx context.Context, scanID, dest string) (*asoc.ScanSummary, error) {
	s.calls = append(s.calls, "summary:"+filepath.Base(dest))
	if err := os.WriteFile(dest, []byte(`{"Id":"scan-1"}`), 0644); err != nil {
		return nil, err
	}
	return &asoc.ScanSummary{ID: scanID, LatestExecution: asoc.Execution{Status: asoc.StatusReady, NHighIssues: 1, NIssuesFound: 1}}, nil
}

func (s *fakeSession) FetchReport(ctx context.Context, scanID, dest, format string) error {
	s.calls = append(s.calls, "report:"+filepath.Base(dest)+":"+format)
	if s.reportErr != nil {
		return s.reportErr
	}
	return os.WriteFile(dest, []byte("<html></html>"), 0644)
}

func (s *fakeSession) Close() error {
	s.closes++
	return nil
}

type fakePackager struct {
	dir  string
	name string
	err  error
}

func (p *fakePackager) Prepare(ctx context.Context, scanName, configPath string) (*irx.Archive, error) {
	if p.err != nil {
		return nil, p.err
	}
	name := scanName
	if p.name != "" {
		name = p.name
	}
	path := filepath.Join(p.dir, name+".irx")
	if err := os.WriteFile(path, []byte("irx"), 0644); err != nil {
		return nil, err
	}
	return &irx.Archive{Name: name, Path: path}, nil
}

type fakeUploader struct {
	prefix string
	files  []string
}

func (u *fakeUploader) Upload(ctx context.Context, prefix string, files ...string) ([]string, error) {
	u.prefix = prefix
	u.files = files
	urls := make([]string, len(files))
	for i, f := range files {
		urls[i] = "http://store/" + prefix + "/" + filepath.Base(f)
	}
	return urls, nil
}

func newFixture(t *testing.T) (*fakeService, *fakeSession, *fakePackager) {
	t.Helper()
	session := &fakeSession{
		app:    &asoc.Application{ID: "app-1", Name: "billing"},
		status: asoc.StatusReady,
	}
	return &fakeService{session: session}, session, &fakePackager{dir: t.TempDir()}
}

func runOpts() Options {
	return Options{
		Credentials:  credentials.Credentials{KeyID: "id", KeySecret: "secret"},
		App:          "billing",
		PollInterval: time.Millisecond,
	}
}

func TestRun_Success(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	svc, session, pkg := newFixture(t)
	pkg.name = "Static_Scan_1602"
	out := &bytes.Buffer{}

	// --- Act ---
	result, err := New(Dependencies{Service: svc, Packager: pkg}, out).Run(context.Background(), runOpts())

	// --- Assert ---
	require.NoError(t, err)
	require.Equal(t, StateDone, result.State)
	require.Equal(t, "Static_Scan_1602", result.ScanName)
	require.Equal(t, "scan-1", result.ScanID)
	require.NotEmpty(t, result.RunID)
	require.FileExists(t, filepath.Join(pkg.dir, "Static_Scan_1602_result.json"))
	require.FileExists(t, filepath.Join(pkg.dir, "Static_Scan_1602_report.html"))
	require.Equal(t, []string{
		"find:billing",
		"submit:Static_Scan_1602.irx:Static_Scan_1602:app-1",
		"wait:scan-1",
		"summary:Static_Scan_1602_result.json",
		"report:Static_Scan_1602_report.html:html",
	}, session.calls)
	require.Equal(t, 1, session.closes, "session must be closed on success")
	require.Contains(t, out.String(), "=== Step 1: Login to ASoC ===")
	require.Contains(t, out.String(), "Application Found: Name [billing] Id [app-1]")
}

func TestRun_DefaultScanName(t *testing.T) {
	t.Parallel()

	svc, _, pkg := newFixture(t)

	result, err := New(Dependencies{Service: svc, Packager: pkg}, nil).Run(context.Background(), runOpts())

	require.NoError(t, err)
	require.Equal(t, DefaultScanName, result.ScanName)
}

func TestRun_ScanFailed(t *testing.T) {
	t.Parallel()

	svc, session, pkg := newFixture(t)
	session.status = asoc.StatusFailed

	result, err := New(Dependencies{Service: svc, Packager: pkg}, nil).Run(context.Background(), runOpts())

	require.ErrorIs(t, err, ErrScanNotReady)
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	require.Equal(t, StatePolling, stepErr.State)
	require.Equal(t, StateAborted, result.State)
	require.Equal(t, StatePolling, result.FailedAt)
	require.Equal(t, asoc.StatusFailed, result.ScanStatus)
	require.Equal(t, 1, session.closes)
	require.Equal(t, "wait:scan-1", session.calls[len(session.calls)-1], "no summary or report after a failed scan")
	require.NoFileExists(t, filepath.Join(pkg.dir, "Static_Scan_result.json"))
}

func TestRun_LoginFailure(t *testing.T) {
	t.Parallel()

	svc, session, pkg := newFixture(t)
	svc.loginErr = errors.New("401")

	_, err := New(Dependencies{Service: svc, Packager: pkg}, nil).Run(context.Background(), runOpts())

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	require.Equal(t, StateLoggingIn, stepErr.State)
	require.Zero(t, session.closes, "nothing to close without a session")
	require.Empty(t, session.calls)
}

func TestRun_AppNotFound(t *testing.T) {
	t.Parallel()

	svc, session, pkg := newFixture(t)
	session.app = nil
	session.findErr = asoc.ErrApplicationNotFound

	_, err := New(Dependencies{Service: svc, Packager: pkg}, nil).Run(context.Background(), runOpts())

	require.ErrorIs(t, err, asoc.ErrApplicationNotFound)
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	require.Equal(t, StateResolvingApp, stepErr.State)
	require.Equal(t, 1, session.closes)
	require.Equal(t, []string{"find:billing"}, session.calls)
}

func TestRun_PackagingFailure(t *testing.T) {
	t.Parallel()

	svc, session, pkg := newFixture(t)
	pkg.err = errors.New("appscan prepare failed")

	_, err := New(Dependencies{Service: svc, Packager: pkg}, nil).Run(context.Background(), runOpts())

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	require.Equal(t, StatePackagingSource, stepErr.State)
	require.Equal(t, 1, session.closes)
}

func TestRun_ReportFailure(t *testing.T) {
	t.Parallel()

	svc, session, pkg := newFixture(t)
	session.reportErr = asoc.ErrReportFailed

	result, err := New(Dependencies{Service: svc, Packager: pkg}, nil).Run(context.Background(), runOpts())

	require.ErrorIs(t, err, asoc.ErrReportFailed)
	require.Equal(t, StateFetchingReport, result.FailedAt)
	require.Equal(t, 1, session.closes)
}

func TestRun_Timeout(t *testing.T) {
	t.Parallel()

	svc, session, pkg := newFixture(t)
	session.waitBlock = true
	opts := runOpts()
	opts.Timeout = 20 * time.Millisecond

	result, err := New(Dependencies{Service: svc, Packager: pkg}, nil).Run(context.Background(), opts)

	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.ErrorContains(t, err, "still running after 20ms")
	require.Equal(t, StatePolling, result.FailedAt)
	require.Equal(t, 1, session.closes)
}

func TestRun_Cancelled(t *testing.T) {
	t.Parallel()

	svc, session, pkg := newFixture(t)
	session.waitBlock = true
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	_, err := New(Dependencies{Service: svc, Packager: pkg}, nil).Run(ctx, runOpts())

	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, session.closes)
}

func TestRun_Archive(t *testing.T) {
	t.Parallel()

	svc, _, pkg := newFixture(t)
	up := &fakeUploader{}

	result, err := New(Dependencies{Service: svc, Packager: pkg, Uploader: up}, nil).Run(context.Background(), runOpts())

	require.NoError(t, err)
	require.Equal(t, "Static_Scan", up.prefix)
	require.Equal(t, []string{result.SummaryFile, result.ReportFile}, up.files)
	require.Equal(t, []string{
		"http://store/Static_Scan/Static_Scan_result.json",
		"http://store/Static_Scan/Static_Scan_report.html",
	}, result.ArchiveURLs)
}

func TestRun_Quiet(t *testing.T) {
	t.Parallel()

	svc, _, pkg := newFixture(t)
	out := &bytes.Buffer{}
	opts := runOpts()
	opts.Quiet = true

	_, err := New(Dependencies{Service: svc, Packager: pkg}, out).Run(context.Background(), opts)

	require.NoError(t, err)
	require.Empty(t, out.String())
}

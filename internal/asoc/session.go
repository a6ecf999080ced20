package asoc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/nelssec/sastscan/internal/logging"
)

// Session is an authenticated handle on the service. It is not safe for
// concurrent use.
type Session struct {
	client *Client
	token  string
	closed bool
}

func (s *Session) request(ctx context.Context) (*resty.Request, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	return s.client.http.R().SetContext(ctx).SetAuthToken(s.token), nil
}

// FindApplication resolves an application by ID or exact name. An identifier
// shaped like an ID that matches no application is retried as a name.
// Anything other than exactly one match is ErrApplicationNotFound.
func (s *Session) FindApplication(ctx context.Context, identifier string) (*Application, error) {
	if _, err := uuid.Parse(identifier); err == nil {
		app, err := s.applicationByID(ctx, identifier)
		if !errors.Is(err, ErrApplicationNotFound) {
			return app, err
		}
		logging.FromContext(ctx).Debug("No application with that id, trying it as a name", "identifier", identifier)
	}
	return s.applicationByName(ctx, identifier)
}

func (s *Session) applicationByID(ctx context.Context, id string) (*Application, error) {
	req, err := s.request(ctx)
	if err != nil {
		return nil, err
	}

	var app Application
	resp, err := req.
		SetPathParam("id", id).
		SetResult(&app).
		Get("/api/v2/Apps/{id}")
	if err == nil && resp.StatusCode() == http.StatusNotFound {
		return nil, fmt.Errorf("%w: no application with id %s", ErrApplicationNotFound, id)
	}
	if err := checkResponse("get application", resp, err); err != nil {
		return nil, err
	}
	if app.ID == "" {
		return nil, fmt.Errorf("%w: no application with id %s", ErrApplicationNotFound, id)
	}
	return &app, nil
}

func (s *Session) applicationByName(ctx context.Context, name string) (*Application, error) {
	req, err := s.request(ctx)
	if err != nil {
		return nil, err
	}

	var apps []Application
	resp, err := req.
		SetQueryParam("$filter", fmt.Sprintf("Name eq '%s'", strings.ReplaceAll(name, "'", "''"))).
		SetResult(&apps).
		Get("/api/v2/Apps")
	if err := checkResponse("list applications", resp, err); err != nil {
		return nil, err
	}

	var matches []Application
	for _, app := range apps {
		if app.Name == name {
			matches = append(matches, app)
		}
	}

	switch len(matches) {
	case 1:
		return &matches[0], nil
	case 0:
		return nil, fmt.Errorf("%w: no application named %q", ErrApplicationNotFound, name)
	default:
		return nil, fmt.Errorf("%w: %d applications named %q", ErrApplicationNotFound, len(matches), name)
	}
}

// Submit uploads an IRX archive and queues a static analysis scan for it.
// It returns the new scan ID.
func (s *Session) Submit(ctx context.Context, irxPath, scanName, appID string) (string, error) {
	req, err := s.request(ctx)
	if err != nil {
		return "", err
	}

	var upload fileUploadResponse
	resp, err := req.
		SetFile("fileToUpload", irxPath).
		SetResult(&upload).
		Post("/api/v2/FileUpload")
	if err := checkResponse("upload irx", resp, err); err != nil {
		return "", err
	}
	if upload.FileID == "" {
		return "", fmt.Errorf("upload irx: service returned an empty file id")
	}
	logging.FromContext(ctx).Debug("IRX uploaded", "file_id", upload.FileID, "path", irxPath)

	req, err = s.request(ctx)
	if err != nil {
		return "", err
	}

	var scan idResponse
	resp, err = req.
		SetBody(staticScanRequest{
			ARSAFileID: upload.FileID,
			ScanName:   scanName,
			AppID:      appID,
			Locale:     s.client.locale,
		}).
		SetResult(&scan).
		Post("/api/v2/Scans/StaticAnalyzer")
	if err := checkResponse("create scan", resp, err); err != nil {
		return "", err
	}
	if scan.ID == "" {
		return "", fmt.Errorf("create scan: service returned an empty scan id")
	}
	return scan.ID, nil
}

func (s *Session) getScan(ctx context.Context, scanID string) (*ScanSummary, []byte, error) {
	req, err := s.request(ctx)
	if err != nil {
		return nil, nil, err
	}

	resp, err := req.
		SetPathParam("id", scanID).
		Get("/api/v2/Scans/{id}")
	if err := checkResponse("get scan", resp, err); err != nil {
		return nil, nil, err
	}

	body := resp.Body()
	var summary ScanSummary
	if err := json.Unmarshal(body, &summary); err != nil {
		return nil, nil, fmt.Errorf("get scan: decode response: %w", err)
	}
	return &summary, body, nil
}

// WaitForCompletion polls the scan every interval until its latest execution
// reaches a terminal status, and returns that status. It stops early with the
// context's error when ctx is done.
func (s *Session) WaitForCompletion(ctx context.Context, scanID string, interval time.Duration) (string, error) {
	logger := logging.FromContext(ctx)

	var status string
	err := poll(ctx, interval, func() (bool, error) {
		summary, _, err := s.getScan(ctx, scanID)
		if err != nil {
			return false, err
		}
		status = summary.LatestExecution.Status
		logger.Info("Scan status",
			"scan_id", scanID,
			"status", status,
			"progress", summary.LatestExecution.ExecutionProgress,
		)
		return IsTerminal(status), nil
	})
	if err != nil {
		return "", err
	}
	return status, nil
}

// FetchSummary reads the scan record, writes it unchanged to dest and returns
// the decoded form.
func (s *Session) FetchSummary(ctx context.Context, scanID, dest string) (*ScanSummary, error) {
	summary, body, err := s.getScan(ctx, scanID)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(dest, body, 0644); err != nil {
		return nil, fmt.Errorf("failed to write scan summary: %w", err)
	}
	return summary, nil
}

// FetchReport generates a security report for the scan in the given format
// (for example "html"), waits for it and downloads it to dest.
func (s *Session) FetchReport(ctx context.Context, scanID, dest, format string) error {
	req, err := s.request(ctx)
	if err != nil {
		return err
	}

	var created idResponse
	resp, err := req.
		SetPathParam("id", scanID).
		SetBody(reportRequest{Configuration: reportConfiguration{
			Summary:           true,
			Details:           true,
			Discussion:        true,
			Overview:          true,
			TableOfContent:    true,
			Advisories:        true,
			FixRecommendation: true,
			History:           true,
			Coverage:          true,
			MinimizeDetails:   true,
			Articles:          true,
			ReportFileType:    reportFileType(format),
			Title:             filepath.Base(strings.TrimSuffix(dest, filepath.Ext(dest))),
			Locale:            s.client.locale,
		}}).
		SetResult(&created).
		Post("/api/v2/Reports/Security/Scan/{id}")
	if err := checkResponse("create report", resp, err); err != nil {
		return err
	}
	if created.ID == "" {
		return fmt.Errorf("create report: service returned an empty report id")
	}

	logger := logging.FromContext(ctx)
	err = poll(ctx, s.client.reportPollInterval, func() (bool, error) {
		req, err := s.request(ctx)
		if err != nil {
			return false, err
		}
		var st reportStatus
		resp, err := req.
			SetPathParam("id", created.ID).
			SetResult(&st).
			Get("/api/v2/Reports/{id}")
		if err := checkResponse("get report status", resp, err); err != nil {
			return false, err
		}
		logger.Debug("Report status", "report_id", created.ID, "status", st.Status)
		switch st.Status {
		case StatusReady:
			return true, nil
		case StatusFailed, "Abort":
			return false, fmt.Errorf("%w: status %s", ErrReportFailed, st.Status)
		}
		return false, nil
	})
	if err != nil {
		return err
	}

	return s.download(ctx, created.ID, dest)
}

func (s *Session) download(ctx context.Context, reportID, dest string) error {
	req, err := s.request(ctx)
	if err != nil {
		return err
	}

	resp, err := req.
		SetPathParam("id", reportID).
		SetDoNotParseResponse(true).
		Get("/api/v2/Reports/{id}/Download")
	if err != nil {
		return fmt.Errorf("download report: %w", err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(body, maxErrorBody))
		return &APIError{Op: "download report", StatusCode: resp.StatusCode(), Body: truncate(string(msg), maxErrorBody)}
	}

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(dest)
		return fmt.Errorf("failed to write report file: %w", err)
	}
	return f.Close()
}

// Close invalidates the session token. Calling it more than once is a no-op.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	ctx, cancel := context.WithTimeout(context.Background(), logoutTimeout)
	defer cancel()

	resp, err := s.client.http.R().
		SetContext(ctx).
		SetAuthToken(s.token).
		Get("/api/v2/Account/Logout")
	return checkResponse("logout", resp, err)
}

func reportFileType(format string) string {
	switch strings.ToLower(format) {
	case "pdf":
		return "Pdf"
	case "xml":
		return "Xml"
	default:
		return "Html"
	}
}

// poll calls check immediately and then once per interval until it reports
// done, fails, or ctx ends.
func poll(ctx context.Context, interval time.Duration, check func() (bool, error)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		done, err := check()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				return ctxErr
			}
			return err
		}
		if done {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

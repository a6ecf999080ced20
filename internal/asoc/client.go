// Package asoc is a client for the HCL AppScan on Cloud REST API, limited to
// the calls needed to run a static analysis scan end to end.
package asoc

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	DefaultBaseURL            = "https://cloud.appscan.com"
	DefaultLocale             = "en-US"
	defaultRequestTimeout     = 2 * time.Minute
	defaultReportPollInterval = 10 * time.Second
	logoutTimeout             = 30 * time.Second
	maxErrorBody              = 512
)

type Options struct {
	BaseURL        string
	Locale         string
	RequestTimeout time.Duration
	// ReportPollInterval is how often a pending report is checked.
	ReportPollInterval time.Duration
	UserAgent          string
}

type Client struct {
	http               *resty.Client
	locale             string
	reportPollInterval time.Duration
}

func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Locale == "" {
		opts.Locale = DefaultLocale
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.ReportPollInterval <= 0 {
		opts.ReportPollInterval = defaultReportPollInterval
	}

	h := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(opts.RequestTimeout).
		SetHeader("Accept", "application/json")
	if opts.UserAgent != "" {
		h.SetHeader("User-Agent", opts.UserAgent)
	}

	return &Client{
		http:               h,
		locale:             opts.Locale,
		reportPollInterval: opts.ReportPollInterval,
	}
}

// Login exchanges an API key pair for a bearer token. The returned Session
// must be closed to invalidate the token.
func (c *Client) Login(ctx context.Context, keyID, keySecret string) (*Session, error) {
	var out loginResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(loginRequest{KeyID: keyID, KeySecret: keySecret}).
		SetResult(&out).
		Post("/api/v2/Account/ApiKeyLogin")
	if err := checkResponse("login", resp, err); err != nil {
		return nil, err
	}
	if out.Token == "" {
		return nil, fmt.Errorf("login: service returned an empty token")
	}

	return &Session{client: c, token: out.Token}, nil
}

func checkResponse(op string, resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if resp.IsError() {
		return &APIError{Op: op, StatusCode: resp.StatusCode(), Body: truncate(resp.String(), maxErrorBody)}
	}
	return nil
}

func truncate(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

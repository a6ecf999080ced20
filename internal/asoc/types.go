package asoc

import (
	"errors"
	"fmt"
)

const (
	StatusReady  = "Ready"
	StatusFailed = "Failed"
)

var (
	ErrApplicationNotFound = errors.New("application not found")
	ErrReportFailed        = errors.New("report generation failed")
	ErrSessionClosed       = errors.New("session is closed")
)

// pendingStatuses are execution states the service will still move out of.
// Anything else reported by the service is terminal.
var pendingStatuses = map[string]bool{
	"Pending":                   true,
	"Starting":                  true,
	"Running":                   true,
	"InQueue":                   true,
	"Paused":                    true,
	"Pausing":                   true,
	"FinishedRunning":           true,
	"FinishedRunningWithErrors": true,
	"PendingSupport":            true,
}

func IsTerminal(status string) bool {
	return status != "" && !pendingStatuses[status]
}

type Application struct {
	ID   string `json:"Id"`
	Name string `json:"Name"`
}

// Execution is the subset of a scan's latest execution this tool reads.
type Execution struct {
	Status            string `json:"Status"`
	ExecutionProgress string `json:"ExecutionProgress"`
	CreatedAt         string `json:"CreatedAt"`
	ScanEndTime       string `json:"ScanEndTime"`
	NHighIssues       int    `json:"NHighIssues"`
	NMediumIssues     int    `json:"NMediumIssues"`
	NLowIssues        int    `json:"NLowIssues"`
	NInfoIssues       int    `json:"NInfoIssues"`
	NIssuesFound      int    `json:"NIssuesFound"`
}

type ScanSummary struct {
	ID              string    `json:"Id"`
	Name            string    `json:"Name"`
	AppID           string    `json:"AppId"`
	LatestExecution Execution `json:"LatestExecution"`
}

type loginRequest struct {
	KeyID     string `json:"KeyId"`
	KeySecret string `json:"KeySecret"`
}

type loginResponse struct {
	Token string `json:"Token"`
}

type fileUploadResponse struct {
	FileID string `json:"FileId"`
}

type staticScanRequest struct {
	ARSAFileID             string `json:"ARSAFileId"`
	ScanName               string `json:"ScanName"`
	AppID                  string `json:"AppId"`
	Locale                 string `json:"Locale"`
	Personal               bool   `json:"Personal"`
	EnableMailNotification bool   `json:"EnableMailNotification"`
}

type idResponse struct {
	ID string `json:"Id"`
}

type reportConfiguration struct {
	Summary           bool   `json:"Summary"`
	Details           bool   `json:"Details"`
	Discussion        bool   `json:"Discussion"`
	Overview          bool   `json:"Overview"`
	TableOfContent    bool   `json:"TableOfContent"`
	Advisories        bool   `json:"Advisories"`
	FixRecommendation bool   `json:"FixRecommendation"`
	History           bool   `json:"History"`
	Coverage          bool   `json:"Coverage"`
	MinimizeDetails   bool   `json:"MinimizeDetails"`
	Articles          bool   `json:"Articles"`
	ReportFileType    string `json:"ReportFileType"`
	Title             string `json:"Title"`
	Locale            string `json:"Locale"`
}

type reportRequest struct {
	Configuration reportConfiguration `json:"Configuration"`
}

type reportStatus struct {
	ID     string `json:"Id"`
	Status string `json:"Status"`
}

// APIError is a non-2xx response from the service.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}

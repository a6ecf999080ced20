package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/nelssec/sastscan/internal/pipeline"
)

type JSONOutput struct {
	*pipeline.Result
	Duration         string  `json:"duration,omitempty"`
	DurationSeconds  float64 `json:"duration_seconds"`
	ScanDurationText string  `json:"scan_duration,omitempty"`
	ExitCode         int     `json:"exit_code"`
}

func PrintJSON(w io.Writer, result *pipeline.Result) error {
	out := JSONOutput{Result: result}
	if !result.EndTime.IsZero() {
		d := result.EndTime.Sub(result.StartTime)
		out.Duration = FormatDuration(d)
		out.DurationSeconds = d.Seconds()
	}
	if result.Summary != nil {
		exec := result.Summary.LatestExecution
		if d, err := ScanDuration(exec.CreatedAt, exec.ScanEndTime); err == nil {
			out.ScanDurationText = FormatDuration(d)
		}
	}
	if result.Error != "" {
		out.ExitCode = 1
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	_, err = fmt.Fprintln(w, string(data))
	return err
}

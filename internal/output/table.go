package output

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/nelssec/sastscan/internal/pipeline"
)

func PrintTable(w io.Writer, result *pipeline.Result) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "ASoC Static Scan Results")
	fmt.Fprintln(w, "========================")
	fmt.Fprintf(w, "Run:        %s\n", result.RunID)
	if result.App != nil {
		fmt.Fprintf(w, "App:        %s (%s)\n", result.App.Name, result.App.ID)
	}
	if result.ScanName != "" {
		fmt.Fprintf(w, "Scan:       %s\n", result.ScanName)
	}
	if result.ScanID != "" {
		fmt.Fprintf(w, "Scan ID:    %s\n", result.ScanID)
	}

	if result.Error != "" {
		fmt.Fprintf(w, "Failed At:  %s\n", result.FailedAt)
		fmt.Fprintf(w, "Error:      %s\n", result.Error)
		fmt.Fprintln(w)
		return
	}

	if s := result.Summary; s != nil {
		exec := s.LatestExecution
		fmt.Fprintf(w, "Status:     %s (%s)\n", exec.Status, exec.ExecutionProgress)
		if d, err := ScanDuration(exec.CreatedAt, exec.ScanEndTime); err == nil {
			fmt.Fprintf(w, "Duration:   %s\n", FormatDuration(d))
		} else {
			fmt.Fprintf(w, "Duration:   unknown\n")
		}

		fmt.Fprintln(w)
		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"Severity", "Issues"})
		table.SetBorder(false)
		table.SetAutoWrapText(false)
		table.Append([]string{"High", strconv.Itoa(exec.NHighIssues)})
		table.Append([]string{"Medium", strconv.Itoa(exec.NMediumIssues)})
		table.Append([]string{"Low", strconv.Itoa(exec.NLowIssues)})
		table.Append([]string{"Info", strconv.Itoa(exec.NInfoIssues)})
		table.SetFooter([]string{"Total", strconv.Itoa(exec.NIssuesFound)})
		table.Render()
	}

	files := [][]string{}
	if result.SummaryFile != "" {
		files = append(files, []string{"Summary", relPath(result.SummaryFile)})
	}
	if result.ReportFile != "" {
		files = append(files, []string{"Report", relPath(result.ReportFile)})
	}
	for _, u := range result.ArchiveURLs {
		files = append(files, []string{"Archive", u})
	}

	if len(files) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Files:")

		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"Kind", "Path"})
		table.SetBorder(false)
		table.SetAutoWrapText(false)
		table.AppendBulk(files)
		table.Render()
		fmt.Fprintln(w, "Use the summary JSON file for further automation.")
	}

	fmt.Fprintln(w)
}

func relPath(path string) string {
	rel, err := filepath.Rel(".", path)
	if err != nil {
		return path
	}
	return rel
}

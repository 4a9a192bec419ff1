package reporter

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ppiankov/goldrun/internal/task"
)

// Report file names inside a run directory.
const (
	JSONReportFile  = "report.json"
	SARIFReportFile = "report.sarif"
)

// WriteJSONReport writes the batch report as JSON to the given path.
func WriteJSONReport(report *task.BatchReport, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	return nil
}

// ReadJSONReport loads a report written by WriteJSONReport.
func ReadJSONReport(path string) (*task.BatchReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}

	var report task.BatchReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("parse report %s: %w", path, err)
	}
	return &report, nil
}

package reporter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ppiankov/goldrun/internal/task"
)

const (
	sarifSchema  = "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/main/sarif-2.1/schema/sarif-schema-2.1.0.json"
	sarifVersion = "2.1.0"
)

type sarifReport struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name  string      `json:"name"`
	Rules []sarifRule `json:"rules,omitempty"`
}

type sarifRule struct {
	ID string `json:"id"`
}

type sarifResult struct {
	RuleID    string          `json:"ruleId"`
	Level     string          `json:"level"`
	Message   sarifMessage    `json:"message"`
	Locations []sarifLocation `json:"locations,omitempty"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
}

type sarifArtifactLocation struct {
	URI string `json:"uri"`
}

// skippedRule is the rule id for cases that never ran.
const skippedRule = "skipped"

// WriteSARIFReport writes a SARIF v2.1.0 report with one result per case
// that did not pass. Mismatches point at each differing file in the new
// output; other failures point at the configuration file.
func WriteSARIFReport(report *task.BatchReport, path string) error {
	results := []sarifResult{}
	rules := map[string]struct{}{}

	for _, r := range report.Results {
		var level string
		switch r.State {
		case task.StateFailed, task.StateErrored:
			level = "error"
		case task.StateSkipped:
			level = "warning"
		default:
			continue // only include non-success states
		}

		rule := r.ErrorKind
		if r.State == task.StateSkipped || rule == "" {
			rule = skippedRule
		}
		rules[rule] = struct{}{}

		msg := r.Error
		if msg == "" {
			msg = r.State.String()
		}

		sr := sarifResult{
			RuleID:  rule,
			Level:   level,
			Message: sarifMessage{Text: fmt.Sprintf("%s: %s", r.Case, msg)},
		}
		if len(r.Differing) > 0 && r.NewDir != "" {
			for _, name := range r.Differing {
				sr.Locations = append(sr.Locations, location(filepath.Join(r.NewDir, filepath.FromSlash(name))))
			}
		} else if r.ConfigPath != "" {
			sr.Locations = []sarifLocation{location(r.ConfigPath)}
		}

		results = append(results, sr)
	}

	ids := make([]string, 0, len(rules))
	for id := range rules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	driver := sarifDriver{Name: "goldrun"}
	for _, id := range ids {
		driver.Rules = append(driver.Rules, sarifRule{ID: id})
	}

	sarif := sarifReport{
		Schema:  sarifSchema,
		Version: sarifVersion,
		Runs: []sarifRun{{
			Tool:    sarifTool{Driver: driver},
			Results: results,
		}},
	}

	data, err := json.MarshalIndent(sarif, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sarif: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write sarif: %w", err)
	}

	return nil
}

func location(path string) sarifLocation {
	return sarifLocation{
		PhysicalLocation: sarifPhysicalLocation{
			ArtifactLocation: sarifArtifactLocation{URI: filepath.ToSlash(path)},
		},
	}
}

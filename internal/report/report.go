// Package report aggregates per-step outcomes into a run report.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Status is the terminal state of a step within a run.
type Status string

const (
	StatusCreated Status = "created"
	StatusSkipped Status = "skipped_existing"
	StatusFailed  Status = "failed"
	StatusDeleted Status = "deleted"
	StatusPassed  Status = "passed"
)

// Outcome records what happened to one step during a run.
type Outcome struct {
	Step     string        `json:"step"`
	Status   Status        `json:"status"`
	Detail   string        `json:"detail,omitempty"`
	Duration time.Duration `json:"durationNs,omitempty"`
}

// Summary holds aggregate counts for a run.
type Summary struct {
	Total   int `json:"total"`
	Created int `json:"created"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
	Deleted int `json:"deleted"`
	Passed  int `json:"passed"`
}

// Reporter collects outcomes for a single run. It performs no I/O until
// Write is called.
type Reporter struct {
	RunID     string
	Command   string
	StartedAt time.Time

	outcomes []Outcome
}

func NewReporter(command string) *Reporter {
	return &Reporter{
		RunID:     uuid.NewString(),
		Command:   command,
		StartedAt: time.Now().UTC(),
	}
}

// Record appends an outcome to the run.
func (r *Reporter) Record(o Outcome) {
	r.outcomes = append(r.outcomes, o)
}

// Outcomes returns all recorded outcomes in order.
func (r *Reporter) Outcomes() []Outcome {
	out := make([]Outcome, len(r.outcomes))
	copy(out, r.outcomes)
	return out
}

// Summarize returns aggregate counts over the recorded outcomes.
func (r *Reporter) Summarize() Summary {
	s := Summary{Total: len(r.outcomes)}
	for _, o := range r.outcomes {
		switch o.Status {
		case StatusCreated:
			s.Created++
		case StatusSkipped:
			s.Skipped++
		case StatusFailed:
			s.Failed++
		case StatusDeleted:
			s.Deleted++
		case StatusPassed:
			s.Passed++
		}
	}
	return s
}

// Render writes a human-readable summary.
func (r *Reporter) Render(w io.Writer) {
	for _, o := range r.outcomes {
		symbol, color := "+", "\033[32m"
		switch o.Status {
		case StatusSkipped:
			symbol, color = "=", "\033[0m"
		case StatusFailed:
			symbol, color = "!", "\033[31m"
		case StatusDeleted:
			symbol, color = "-", "\033[31m"
		case StatusPassed:
			symbol, color = "✓", "\033[32m"
		}
		fmt.Fprintf(w, "%s  %s %-28s %s", color, symbol, o.Step, o.Status)
		if o.Detail != "" {
			fmt.Fprintf(w, " (%s)", o.Detail)
		}
		fmt.Fprintf(w, "\033[0m\n")
	}

	s := r.Summarize()
	fmt.Fprintf(w, "\nRun %s: %d total, %d created, %d skipped, %d deleted, %d failed\n",
		r.RunID, s.Total, s.Created, s.Skipped, s.Deleted, s.Failed)
}

// document is the structured report written after every run.
type document struct {
	RunID      string    `json:"runId"`
	Command    string    `json:"command"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Outcomes   []Outcome `json:"outcomes"`
	Summary    Summary   `json:"summary"`
}

// Write renders the structured report document to path.
func (r *Reporter) Write(path string) error {
	data, err := r.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report %s: %w", path, err)
	}
	return nil
}

// Marshal renders the structured report document.
func (r *Reporter) Marshal() ([]byte, error) {
	doc := document{
		RunID:      r.RunID,
		Command:    r.Command,
		StartedAt:  r.StartedAt,
		FinishedAt: time.Now().UTC(),
		Outcomes:   r.outcomes,
		Summary:    r.Summarize(),
	}
	if doc.Outcomes == nil {
		doc.Outcomes = []Outcome{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize report: %w", err)
	}
	return append(data, '\n'), nil
}

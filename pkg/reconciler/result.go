package reconciler

import (
	"fmt"
	"time"

	"github.com/agentstation/eolsync/pkg/errors"
)

// ServiceResult is the outcome for one service.
type ServiceResult struct {
	ServiceID  string `json:"service" yaml:"service"`
	Frameworks int    `json:"frameworks" yaml:"frameworks"`
	EOLCount   int    `json:"eol_count" yaml:"eol_count"`
	Updated    bool   `json:"updated" yaml:"updated"`
	Error      string `json:"error,omitempty" yaml:"error,omitempty"`

	Err error `json:"-" yaml:"-"`
}

// Result represents the outcome of a reconciliation pass.
type Result struct {
	RunID    string          `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	DryRun   bool            `json:"dry_run" yaml:"dry_run"`
	Services []ServiceResult `json:"services" yaml:"services"`

	// Totals
	Frameworks int `json:"frameworks" yaml:"frameworks"`
	Updated    int `json:"updated" yaml:"updated"`
	Failed     int `json:"failed" yaml:"failed"`

	StartTime time.Time     `json:"start_time" yaml:"start_time"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
}

// NewResult creates a new result with defaults.
func NewResult(runID string, dryRun bool) *Result {
	return &Result{
		RunID:     runID,
		DryRun:    dryRun,
		Services:  []ServiceResult{},
		StartTime: time.Now(),
	}
}

func (r *Result) record(sr ServiceResult) {
	if sr.Err != nil {
		sr.Error = sr.Err.Error()
		r.Failed++
	} else if sr.Updated {
		r.Updated++
	}
	r.Services = append(r.Services, sr)
}

// Finalize stamps the duration.
func (r *Result) Finalize() {
	r.Duration = time.Since(r.StartTime)
}

// IsSuccess returns true if no service failed.
func (r *Result) IsSuccess() bool {
	return r.Failed == 0
}

// Err returns a SyncError listing the failed services, or nil. A service
// without an identifier is keyed by its position, e.g. "[index 3]".
func (r *Result) Err() error {
	if r.IsSuccess() {
		return nil
	}
	errs := make(map[string]error, r.Failed)
	for i, s := range r.Services {
		if s.Err == nil {
			continue
		}
		key := s.ServiceID
		if key == "" {
			key = fmt.Sprintf("[index %d]", i)
		}
		errs[key] = s.Err
	}
	return &errors.SyncError{Failed: r.Failed, Total: len(r.Services), Errs: errs}
}

// Summary returns a human-readable summary of the result.
func (r *Result) Summary() string {
	if !r.IsSuccess() {
		return fmt.Sprintf("Reconciliation failed for %d of %d services", r.Failed, len(r.Services))
	}
	if r.DryRun {
		return fmt.Sprintf("Dry run completed. %d services computed, none updated.", len(r.Services))
	}
	return fmt.Sprintf("Reconciliation successful. %d services updated.", r.Updated)
}

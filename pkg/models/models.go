package models

import (
	"time"
)

// AuditRequest is one business row to audit
type AuditRequest struct {
	BusinessName string `json:"business_name" yaml:"business_name"`
	Website      string `json:"website" yaml:"website"`
	City         string `json:"city,omitempty" yaml:"city,omitempty"`

	// Row is the 1-based data row in the input table, used for log correlation only
	Row int `json:"row" yaml:"row"`
}

// FailureKind classifies why a probe did not produce signals
type FailureKind string

const (
	FailureTimeout           FailureKind = "timeout"
	FailureDNS               FailureKind = "dns_error"
	FailureConnectionRefused FailureKind = "connection_refused"
	FailureTLS               FailureKind = "tls_error"
	FailureNavigation        FailureKind = "navigation_error"
	FailureUnknown           FailureKind = "unknown"
)

// FailureKinds lists every failure kind in report order
var FailureKinds = []FailureKind{
	FailureTimeout,
	FailureDNS,
	FailureConnectionRefused,
	FailureTLS,
	FailureNavigation,
	FailureUnknown,
}

// Signals holds what was observed on a successfully loaded page
type Signals struct {
	Reachable      bool    `json:"reachable"`
	StatusCode     *int    `json:"status_code"`
	UsesTLS        bool    `json:"uses_tls"`
	TLSValid       *bool   `json:"tls_valid"`
	ResponseTimeMS int64   `json:"response_time_ms"`
	FinalURL       string  `json:"final_url"`
	PageTitle      *string `json:"page_title"`

	// Quality is nil when the page could not be inspected after load
	Quality *Quality `json:"quality,omitempty"`
}

// Quality holds the page quality indicators measured on the loaded page
type Quality struct {
	MobileResponsive bool `json:"mobile_responsive" yaml:"mobile_responsive"`
	HasViewportMeta  bool `json:"has_viewport_meta" yaml:"has_viewport_meta"`
	HasMediaQueries  bool `json:"has_media_queries" yaml:"has_media_queries"`
	// FitsViewport is true when the body is at most 50px wider than the window
	FitsViewport bool     `json:"fits_viewport" yaml:"fits_viewport"`
	ModernDesign bool     `json:"modern_design" yaml:"modern_design"`
	TechStack    []string `json:"tech_stack,omitempty" yaml:"tech_stack,omitempty"`
}

// Failure describes a classified probe failure
type Failure struct {
	Kind   FailureKind `json:"kind"`
	Detail string      `json:"detail"`
}

// AuditOutcome is the terminal result of probing one request.
// Exactly one of Signals and Failure is set.
type AuditOutcome struct {
	Signals *Signals      `json:"signals,omitempty"`
	Failure *Failure      `json:"failure,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
	Retries int           `json:"retries,omitempty"`

	// Screenshot is the path of the diagnostic capture, if one was taken
	Screenshot string `json:"screenshot,omitempty"`
}

// Success builds a successful outcome
func Success(s Signals) AuditOutcome {
	return AuditOutcome{Signals: &s}
}

// Fail builds a failed outcome
func Fail(kind FailureKind, detail string) AuditOutcome {
	return AuditOutcome{Failure: &Failure{Kind: kind, Detail: detail}}
}

// OK reports whether the outcome carries signals
func (o AuditOutcome) OK() bool {
	return o.Signals != nil && o.Failure == nil
}

// Kind returns "success" or the failure kind, for logs and counters
func (o AuditOutcome) Kind() string {
	if o.OK() {
		return "success"
	}
	if o.Failure == nil {
		return string(FailureUnknown)
	}
	return string(o.Failure.Kind)
}

// Record pairs a request with the outcome produced for it
type Record struct {
	Request AuditRequest
	Outcome AuditOutcome
}

// SkippedRow is an input row excluded from probing
type SkippedRow struct {
	Row    int    `json:"row" yaml:"row"`
	Reason string `json:"reason" yaml:"reason"`
}

// RunSummary is the run-level aggregate produced when the output is finalized
type RunSummary struct {
	RunID        string              `json:"run_id" yaml:"run_id"`
	InputFile    string              `json:"input_file" yaml:"input_file"`
	OutputFile   string              `json:"output_file" yaml:"output_file"`
	LogDir       string              `json:"log_dir" yaml:"log_dir"`
	StartedAt    time.Time           `json:"started_at" yaml:"started_at"`
	FinishedAt   time.Time           `json:"finished_at" yaml:"finished_at"`
	Elapsed      time.Duration       `json:"elapsed" yaml:"elapsed"`
	Total        int                 `json:"total" yaml:"total"`
	Succeeded    int                 `json:"succeeded" yaml:"succeeded"`
	Failed       map[FailureKind]int `json:"failed" yaml:"failed"`
	Skipped      int                 `json:"skipped" yaml:"skipped"`
	NotAttempted int                 `json:"not_attempted" yaml:"not_attempted"`
	Quality      QualitySummary      `json:"quality" yaml:"quality"`
}

// QualitySummary counts quality indicators over the successful audits
type QualitySummary struct {
	Inspected        int            `json:"inspected" yaml:"inspected"`
	MobileResponsive int            `json:"mobile_responsive" yaml:"mobile_responsive"`
	ModernDesign     int            `json:"modern_design" yaml:"modern_design"`
	TechStack        map[string]int `json:"tech_stack" yaml:"tech_stack"`
}

// Add counts one inspected page
func (q *QualitySummary) Add(page *Quality) {
	if page == nil {
		return
	}
	q.Inspected++
	if page.MobileResponsive {
		q.MobileResponsive++
	}
	if page.ModernDesign {
		q.ModernDesign++
	}
	if len(page.TechStack) > 0 && q.TechStack == nil {
		q.TechStack = make(map[string]int)
	}
	for _, tech := range page.TechStack {
		q.TechStack[tech]++
	}
}

// FailedTotal sums failures across kinds
func (s RunSummary) FailedTotal() int {
	n := 0
	for _, c := range s.Failed {
		n += c
	}
	return n
}

package scraper

import (
	"context"
	"time"

	"github.com/williampepple1/website-auditor/pkg/models"
)

// Prober audits one website. Implementations must always return an
// outcome: every error is classified into a Failure instead of escaping.
type Prober interface {
	Probe(ctx context.Context, req models.AuditRequest, timeout time.Duration) models.AuditOutcome
}

// ProberFunc adapts a function to the Prober interface
type ProberFunc func(ctx context.Context, req models.AuditRequest, timeout time.Duration) models.AuditOutcome

// Probe calls f
func (f ProberFunc) Probe(ctx context.Context, req models.AuditRequest, timeout time.Duration) models.AuditOutcome {
	return f(ctx, req, timeout)
}

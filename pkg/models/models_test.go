package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuditOutcomeKind(t *testing.T) {
	t.Parallel()

	ok := Success(Signals{Reachable: true})
	assert.True(t, ok.OK())
	assert.Equal(t, "success", ok.Kind())

	failed := Fail(FailureTLS, "net::ERR_CERT_DATE_INVALID")
	assert.False(t, failed.OK())
	assert.Equal(t, "tls_error", failed.Kind())

	assert.False(t, AuditOutcome{}.OK())
	assert.Equal(t, "unknown", AuditOutcome{}.Kind())
}

func TestRunSummaryFailedTotal(t *testing.T) {
	t.Parallel()

	sum := RunSummary{Total: 6, Succeeded: 2, Failed: map[FailureKind]int{FailureTimeout: 3, FailureDNS: 1}}
	assert.Equal(t, 4, sum.FailedTotal())
	assert.Equal(t, sum.Total, sum.Succeeded+sum.FailedTotal())
}

func TestQualitySummaryAdd(t *testing.T) {
	t.Parallel()

	var q QualitySummary
	q.Add(nil)
	q.Add(&Quality{MobileResponsive: true, TechStack: []string{"WordPress", "jQuery"}})
	q.Add(&Quality{ModernDesign: true, TechStack: []string{"jQuery"}})
	q.Add(&Quality{})

	assert.Equal(t, 3, q.Inspected)
	assert.Equal(t, 1, q.MobileResponsive)
	assert.Equal(t, 1, q.ModernDesign)
	assert.Equal(t, map[string]int{"WordPress": 1, "jQuery": 2}, q.TechStack)
}

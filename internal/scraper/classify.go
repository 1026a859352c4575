package scraper

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/williampepple1/website-auditor/pkg/models"
)

// netErrorPattern matches Chrome's net error codes, e.g. net::ERR_NAME_NOT_RESOLVED
var netErrorPattern = regexp.MustCompile(`net::(ERR_[A-Z0-9_]+)`)

// Classify maps a navigation error to a failure kind
func Classify(err error) models.FailureKind {
	if err == nil {
		return models.FailureUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.FailureTimeout
	}

	m := netErrorPattern.FindStringSubmatch(err.Error())
	if m == nil {
		return models.FailureUnknown
	}
	return classifyNetError(m[1])
}

func classifyNetError(code string) models.FailureKind {
	switch {
	case code == "ERR_NAME_NOT_RESOLVED",
		code == "ERR_NAME_RESOLUTION_FAILED",
		strings.HasPrefix(code, "ERR_DNS_"):
		return models.FailureDNS
	case code == "ERR_CONNECTION_REFUSED":
		return models.FailureConnectionRefused
	case strings.HasPrefix(code, "ERR_CERT_"),
		strings.HasPrefix(code, "ERR_SSL_"),
		code == "ERR_BAD_SSL_CLIENT_AUTH_CERT":
		return models.FailureTLS
	case code == "ERR_TIMED_OUT",
		code == "ERR_CONNECTION_TIMED_OUT":
		return models.FailureTimeout
	default:
		return models.FailureNavigation
	}
}

package scraper

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/williampepple1/website-auditor/pkg/models"
)

func TestNormalizeWebsite(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{in: "acme.example", want: "https://acme.example/"},
		{in: "  acme.example  ", want: "https://acme.example/"},
		{in: "Acme.Example/About", want: "https://acme.example/About"},
		{in: "HTTP://ACME.EXAMPLE", want: "http://acme.example/"},
		{in: "http://acme.example/menu#today", want: "http://acme.example/menu"},
		{in: "acme.example?ref=list", want: "https://acme.example/?ref=list"},
		{in: "//cdn.acme.example", want: "https://cdn.acme.example/"},
		{in: "https://acme.example:8443/", want: "https://acme.example:8443/"},
	}

	for _, tc := range cases {
		got, err := NormalizeWebsite(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestNormalizeWebsiteRejects(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "   ", "ftp://files.acme.example", "https://", "acme example"} {
		_, err := NormalizeWebsite(in)
		assert.ErrorIs(t, err, ErrInvalidWebsite, in)
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want models.FailureKind
	}{
		{err: errors.New("page load error net::ERR_NAME_NOT_RESOLVED"), want: models.FailureDNS},
		{err: errors.New("page load error net::ERR_NAME_RESOLUTION_FAILED"), want: models.FailureDNS},
		{err: errors.New("page load error net::ERR_DNS_TIMED_OUT"), want: models.FailureDNS},
		{err: errors.New("page load error net::ERR_CONNECTION_REFUSED"), want: models.FailureConnectionRefused},
		{err: errors.New("page load error net::ERR_CERT_DATE_INVALID"), want: models.FailureTLS},
		{err: errors.New("page load error net::ERR_CERT_AUTHORITY_INVALID"), want: models.FailureTLS},
		{err: errors.New("page load error net::ERR_SSL_PROTOCOL_ERROR"), want: models.FailureTLS},
		{err: errors.New("page load error net::ERR_BAD_SSL_CLIENT_AUTH_CERT"), want: models.FailureTLS},
		{err: errors.New("page load error net::ERR_CONNECTION_TIMED_OUT"), want: models.FailureTimeout},
		{err: errors.New("page load error net::ERR_TIMED_OUT"), want: models.FailureTimeout},
		{err: errors.New("page load error net::ERR_TOO_MANY_REDIRECTS"), want: models.FailureNavigation},
		{err: errors.New("page load error net::ERR_CONNECTION_RESET"), want: models.FailureNavigation},
		{err: errors.New("page load error net::ERR_ABORTED"), want: models.FailureNavigation},
		{err: fmt.Errorf("navigate: %w", context.DeadlineExceeded), want: models.FailureTimeout},
		{err: errors.New("websocket: close 1006"), want: models.FailureUnknown},
		{err: nil, want: models.FailureUnknown},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.err), "%v", tc.err)
	}
}

package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractorTitle(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		html string
		want string
		ok   bool
	}{
		{
			name: "plain title",
			html: `<html><head><title>Joe's Bakery</title></head><body></body></html>`,
			want: "Joe's Bakery",
			ok:   true,
		},
		{
			name: "whitespace collapsed",
			html: "<html><head><title>\n  Joe's\n\tBakery  </title></head></html>",
			want: "Joe's Bakery",
			ok:   true,
		},
		{
			name: "falls back to og:title",
			html: `<html><head><title>  </title><meta property="og:title" content="Acme Plumbing"></head></html>`,
			want: "Acme Plumbing",
			ok:   true,
		},
		{
			name: "twitter title",
			html: `<html><head><meta name="twitter:title" content="Corner Cafe"></head></html>`,
			want: "Corner Cafe",
			ok:   true,
		},
		{
			name: "no title",
			html: `<html><body><h1>Welcome</h1></body></html>`,
			ok:   false,
		},
	}

	e := NewExtractor()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, ok := e.Title(tc.html)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

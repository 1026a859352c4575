package extraction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractorQuality(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name     string
		html     string
		page     Page
		mobile   bool
		modern   bool
		fits     bool
		viewport bool
	}{
		{
			name:     "viewport meta only",
			html:     `<html><head><meta name="viewport" content="width=device-width"></head><body></body></html>`,
			page:     Page{Now: now},
			mobile:   true,
			viewport: true,
		},
		{
			name:   "body fits the window",
			html:   `<html><body><p>plain</p></body></html>`,
			page:   Page{Now: now, Metrics: &PageMetrics{BodyWidth: 420, WindowWidth: 390}},
			mobile: true,
			fits:   true,
		},
		{
			name: "wide fixed layout",
			html: `<html><body><table width="1200"></table></body></html>`,
			page: Page{Now: now, Metrics: &PageMetrics{BodyWidth: 1200, WindowWidth: 390}},
		},
		{
			name:   "media queries and modern css",
			html:   `<html><body></body></html>`,
			page:   Page{Now: now, Metrics: &PageMetrics{HasMediaQueries: true, ModernCSS: true, BodyWidth: 2000, WindowWidth: 390}},
			mobile: true,
			modern: true,
		},
		{
			name:   "hero section",
			html:   `<html><body><section class="hero">Welcome</section></body></html>`,
			page:   Page{Now: now},
			modern: true,
		},
		{
			name:   "hamburger menu",
			html:   `<html><body><button class="menu-toggle"></button></body></html>`,
			page:   Page{Now: now},
			modern: true,
		},
		{
			name:   "recently modified",
			html:   `<html><body></body></html>`,
			page:   Page{Now: now, LastModified: now.Add(-30 * 24 * time.Hour)},
			modern: true,
		},
		{
			name: "stale page",
			html: `<html><body></body></html>`,
			page: Page{Now: now, LastModified: now.Add(-3 * 365 * 24 * time.Hour)},
		},
	}

	e := NewExtractor()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			doc, err := e.Parse(tc.html)
			require.NoError(t, err)

			q := e.Quality(doc, tc.page)
			assert.Equal(t, tc.mobile, q.MobileResponsive, "mobile responsive")
			assert.Equal(t, tc.modern, q.ModernDesign, "modern design")
			assert.Equal(t, tc.fits, q.FitsViewport, "fits viewport")
			assert.Equal(t, tc.viewport, q.HasViewportMeta, "viewport meta")
		})
	}
}

func TestExtractorTechStack(t *testing.T) {
	t.Parallel()

	e := NewExtractor()

	doc, err := e.Parse(`<html><head>
		<meta name="generator" content="WordPress 6.5">
		<link rel="stylesheet" href="/wp-content/themes/x/style.css">
	</head><body><div data-reactroot></div></body></html>`)
	require.NoError(t, err)
	assert.Equal(t, []string{"jQuery", "React", "WordPress 6.5", "WordPress"},
		e.TechStack(doc, &PageMetrics{Globals: []string{"jQuery", "React"}}))

	doc, err = e.Parse(`<html><body><div data-shopify="cart"></div></body></html>`)
	require.NoError(t, err)
	assert.Equal(t, []string{"Shopify"}, e.TechStack(doc, &PageMetrics{Globals: []string{"Shopify"}}))

	doc, err = e.Parse(`<html><body>hand written</body></html>`)
	require.NoError(t, err)
	assert.Empty(t, e.TechStack(doc, nil))
}

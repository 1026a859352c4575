package extraction

import (
	"slices"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/williampepple1/website-auditor/pkg/models"
)

// fitSlack is how much wider than the window the body may be and still fit
const fitSlack = 50

// recentUpdate is how old a Last-Modified date may be to count as recent
const recentUpdate = 365 * 24 * time.Hour

// PageScript reads what only the live page knows: stylesheet media rules,
// layout widths, framework globals and the computed body style.
const PageScript = `(() => {
	const hasMediaQueries = Array.from(document.styleSheets).some(sheet => {
		try {
			return Array.from(sheet.cssRules || []).some(rule =>
				rule.media && rule.media.mediaText.includes("max-width"));
		} catch (e) {
			return false;
		}
	});

	const globals = [];
	if (window.jQuery) globals.push("jQuery");
	if (window.React) globals.push("React");
	if (window.Vue) globals.push("Vue");
	if (window.angular || window.ng) globals.push("Angular");
	if (window.Shopify) globals.push("Shopify");

	const body = document.body;
	const style = body ? window.getComputedStyle(body) : null;
	const modernCSS = !!style && (
		style.display.includes("flex") ||
		style.display.includes("grid") ||
		style.transform !== "none" ||
		(style.transition !== "" && style.transition !== "all" && style.transition !== "all 0s ease 0s"));

	return {
		hasMediaQueries: hasMediaQueries,
		bodyWidth: body ? body.scrollWidth : 0,
		windowWidth: window.innerWidth,
		globals: globals,
		modernCSS: modernCSS,
	};
})()`

// PageMetrics is the value PageScript returns
type PageMetrics struct {
	HasMediaQueries bool     `json:"hasMediaQueries"`
	BodyWidth       float64  `json:"bodyWidth"`
	WindowWidth     float64  `json:"windowWidth"`
	Globals         []string `json:"globals"`
	ModernCSS       bool     `json:"modernCSS"`
}

// Page is what the extractor knows about a loaded page besides its HTML
type Page struct {
	// Metrics is nil when PageScript could not run
	Metrics *PageMetrics
	// LastModified is the document's Last-Modified header, zero when absent
	LastModified time.Time
	Now          time.Time
}

// Quality scores mobile responsiveness, modern design and the technology
// stack from the rendered document and the live page metrics
func (e *Extractor) Quality(doc *goquery.Document, page Page) models.Quality {
	q := models.Quality{
		HasViewportMeta: doc.Find(`meta[name="viewport"]`).Length() > 0,
		TechStack:       e.TechStack(doc, page.Metrics),
	}

	modern := false
	if m := page.Metrics; m != nil {
		q.HasMediaQueries = m.HasMediaQueries
		q.FitsViewport = m.WindowWidth > 0 && m.BodyWidth <= m.WindowWidth+fitSlack
		modern = m.ModernCSS
	}
	q.MobileResponsive = q.HasViewportMeta || q.HasMediaQueries || q.FitsViewport

	if doc.Find(e.hamburgerMenu).Length() > 0 || doc.Find(e.heroSection).Length() > 0 {
		modern = true
	}
	if !page.LastModified.IsZero() && page.Now.Sub(page.LastModified) < recentUpdate {
		modern = true
	}
	q.ModernDesign = modern

	return q
}

// TechStack lists detected frameworks and platforms in detection order
func (e *Extractor) TechStack(doc *goquery.Document, m *PageMetrics) []string {
	var stack []string
	add := func(name string) {
		if name != "" && !slices.Contains(stack, name) {
			stack = append(stack, name)
		}
	}

	if m != nil {
		for _, name := range m.Globals {
			add(name)
		}
	}
	if doc.Find("[data-reactroot]").Length() > 0 {
		add("React")
	}

	generator, _ := doc.Find(`meta[name="generator"]`).First().Attr("content")
	generator = strings.Join(strings.Fields(generator), " ")
	add(generator)

	if doc.Find(`link[href*="wp-content"], script[src*="wp-content"]`).Length() > 0 ||
		strings.Contains(strings.ToLower(generator), "wordpress") {
		add("WordPress")
	}
	if doc.Find("[data-shopify]").Length() > 0 {
		add("Shopify")
	}

	return stack
}

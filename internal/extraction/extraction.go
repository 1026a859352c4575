package extraction

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// titleSource is a place a page title can come from
type titleSource struct {
	selector string
	attr     string
}

// Extractor pulls audit fields out of rendered HTML
type Extractor struct {
	titles []titleSource

	hamburgerMenu string
	heroSection   string
}

// NewExtractor creates a new data extractor
func NewExtractor() *Extractor {
	return &Extractor{
		titles: []titleSource{
			{selector: "head title"},
			{selector: "title"},
			{selector: `meta[property="og:title"]`, attr: "content"},
			{selector: `meta[name="twitter:title"]`, attr: "content"},
		},
		hamburgerMenu: `.hamburger, .menu-toggle, [class*="mobile-menu"]`,
		heroSection:   `.hero, [class*="banner"], [class*="header-image"]`,
	}
}

// Parse reads rendered HTML into a document
func (e *Extractor) Parse(html string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

// Title returns the first non-empty page title, with whitespace collapsed
func (e *Extractor) Title(html string) (string, bool) {
	doc, err := e.Parse(html)
	if err != nil {
		return "", false
	}
	return e.TitleFromDocument(doc)
}

// TitleFromDocument is Title for an already parsed document
func (e *Extractor) TitleFromDocument(doc *goquery.Document) (string, bool) {
	for _, src := range e.titles {
		sel := doc.Find(src.selector).First()
		if sel.Length() == 0 {
			continue
		}

		var value string
		if src.attr != "" {
			value, _ = sel.Attr(src.attr)
		} else {
			value = sel.Text()
		}

		if value = strings.Join(strings.Fields(value), " "); value != "" {
			return value, true
		}
	}
	return "", false
}

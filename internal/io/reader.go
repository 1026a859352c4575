package io

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	goio "io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/williampepple1/website-auditor/pkg/models"
	"github.com/xuri/excelize/v2"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/text/encoding/charmap"
)

// Loader errors, matched with errors.Is through LoadError
var (
	ErrUnsupportedFormat = errors.New("unsupported input format")
	ErrUnreadable        = errors.New("input file is unreadable")
	ErrMissingColumn     = errors.New("required column is missing")
)

// Skip reasons recorded on SkippedRow
const (
	ReasonEmptyWebsite  = "empty_website"
	ReasonSocialProfile = "social_profile"
)

// LoadError is fatal: nothing is probed when loading fails
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// sourceRow is one record and the line it starts on, counting the header as line 1
type sourceRow struct {
	line  int
	cells []string
}

// Table is the parsed input: requests in input order plus the rows left out
type Table struct {
	Path     string
	Requests []models.AuditRequest
	Skipped  []models.SkippedRow
}

// columns the loader understands, with the header aliases accepted for each
var columnAliases = map[string][]string{
	"business_name": {"business_name", "company_name", "business", "company", "name"},
	"website":       {"website", "website_url", "url", "site", "web", "link", "homepage"},
	"city":          {"city", "town", "location", "place"},
}

// socialDomains are profile/directory hosts rather than a business's own site
var socialDomains = map[string]bool{
	"facebook.com":   true,
	"linkedin.com":   true,
	"twitter.com":    true,
	"x.com":          true,
	"instagram.com":  true,
	"youtube.com":    true,
	"tiktok.com":     true,
	"pinterest.com":  true,
	"snapchat.com":   true,
	"telegram.me":    true,
	"whatsapp.com":   true,
	"yelp.com":       true,
	"foursquare.com": true,
}

// RecordReader reads audit requests from an input table
type RecordReader struct {
	SkipSocialProfiles bool
}

// NewRecordReader creates a new record reader
func NewRecordReader(skipSocial bool) *RecordReader {
	return &RecordReader{SkipSocialProfiles: skipSocial}
}

// Load parses the table at path. Delimited text (.csv, .tsv, .txt) and
// spreadsheets (.xlsx, .xlsm) are supported.
func (r *RecordReader) Load(path string) (*Table, error) {
	var (
		rows []sourceRow
		err  error
	)

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv", ".tsv", ".txt":
		rows, err = readDelimited(path, ext)
	case ".xlsx", ".xlsm":
		rows, err = readSpreadsheet(path)
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	table, err := r.buildTable(rows)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	table.Path = path

	return table, nil
}

func readDelimited(path, ext string) ([]sourceRow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}

	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		// spreadsheet exports on Windows are usually cp1252
		data, err = charmap.Windows1252.NewDecoder().Bytes(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
		}
	}

	cr := csv.NewReader(bytes.NewReader(data))
	cr.Comma = delimiterFor(ext, data)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	// blank lines produce no record, so line numbers come from the reader
	var rows []sourceRow
	for {
		record, err := cr.Read()
		if errors.Is(err, goio.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
		}
		line, _ := cr.FieldPos(0)
		rows = append(rows, sourceRow{line: line, cells: record})
	}
}

func delimiterFor(ext string, data []byte) rune {
	if ext == ".tsv" {
		return '\t'
	}
	if ext == ".txt" {
		header, _, _ := bytes.Cut(data, []byte("\n"))
		if bytes.ContainsRune(header, '\t') && !bytes.ContainsRune(header, ',') {
			return '\t'
		}
	}
	return ','
}

func readSpreadsheet(path string) ([]sourceRow, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}

	cells, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}

	rows := make([]sourceRow, len(cells))
	for i, row := range cells {
		rows[i] = sourceRow{line: i + 1, cells: row}
	}
	return rows, nil
}

func (r *RecordReader) buildTable(rows []sourceRow) (*Table, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: empty table has no header", ErrMissingColumn)
	}

	header := rows[0]
	index := mapColumns(header.cells)
	for _, required := range []string{"business_name", "website"} {
		if _, ok := index[required]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, required)
		}
	}

	table := &Table{Requests: make([]models.AuditRequest, 0, len(rows)-1)}
	for _, row := range rows[1:] {
		req := models.AuditRequest{
			BusinessName: cell(row.cells, index, "business_name"),
			Website:      cell(row.cells, index, "website"),
			City:         cell(row.cells, index, "city"),
			Row:          row.line - header.line,
		}

		if req.Website == "" {
			table.Skipped = append(table.Skipped, models.SkippedRow{Row: req.Row, Reason: ReasonEmptyWebsite})
			continue
		}
		if r.SkipSocialProfiles && IsSocialProfile(req.Website) {
			table.Skipped = append(table.Skipped, models.SkippedRow{Row: req.Row, Reason: ReasonSocialProfile})
			continue
		}

		table.Requests = append(table.Requests, req)
	}

	return table, nil
}

// mapColumns resolves the known columns to header positions. An exact
// column name wins over an alias.
func mapColumns(header []string) map[string]int {
	normalized := make(map[string]int, len(header))
	for i, h := range header {
		key := normalizeHeader(h)
		if _, seen := normalized[key]; !seen {
			normalized[key] = i
		}
	}

	index := make(map[string]int, len(columnAliases))
	for column, aliases := range columnAliases {
		for _, alias := range aliases {
			if pos, ok := normalized[alias]; ok {
				index[column] = pos
				break
			}
		}
	}
	return index
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(h)
}

func cell(row []string, index map[string]int, column string) string {
	pos, ok := index[column]
	if !ok || pos >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[pos])
}

// IsSocialProfile reports whether website points at a social network or
// business directory instead of the business's own domain
func IsSocialProfile(website string) bool {
	raw := strings.TrimSpace(website)
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return false
	}

	host := strings.ToLower(u.Hostname())
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return false
	}
	switch domain {
	case "google.com":
		return strings.HasPrefix(host, "maps.") || strings.HasPrefix(u.Path, "/maps")
	case "goo.gl":
		return strings.HasPrefix(u.Path, "/maps")
	}
	return socialDomains[domain]
}

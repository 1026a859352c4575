package io

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/williampepple1/website-auditor/pkg/models"
)

// Columns is the output table header, in order
var Columns = []string{
	"business_name",
	"website",
	"city",
	"reachable",
	"status_code",
	"uses_tls",
	"tls_valid",
	"response_time_ms",
	"final_url",
	"page_title",
	"failure_kind",
	"failure_detail",
}

// ResultWriter appends audit records to a CSV output table.
// It is not safe for concurrent use; the sink serializes calls.
type ResultWriter struct {
	Path string

	file *os.File
	csv  *csv.Writer
}

// NewResultWriter creates the output table and writes its header
func NewResultWriter(path string) (*ResultWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("could not create results directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("could not create output table: %w", err)
	}

	w := &ResultWriter{Path: path, file: file, csv: csv.NewWriter(file)}
	if err := w.write(Columns); err != nil {
		_ = file.Close()
		return nil, err
	}
	return w, nil
}

// WriteRecord appends one row and flushes it to disk
func (w *ResultWriter) WriteRecord(rec models.Record) error {
	return w.write(Flatten(rec))
}

func (w *ResultWriter) write(row []string) error {
	if err := w.csv.Write(row); err != nil {
		return fmt.Errorf("could not write row: %w", err)
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return fmt.Errorf("could not flush row: %w", err)
	}
	return nil
}

// Close syncs and closes the output table
func (w *ResultWriter) Close() error {
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		_ = w.file.Close()
		return fmt.Errorf("could not flush output table: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		_ = w.file.Close()
		return fmt.Errorf("could not sync output table: %w", err)
	}
	return w.file.Close()
}

// Flatten maps a record to the output columns. Signal columns are empty on
// failure and failure columns are empty on success.
func Flatten(rec models.Record) []string {
	req, out := rec.Request, rec.Outcome
	row := make([]string, len(Columns))
	row[0] = req.BusinessName
	row[1] = req.Website
	row[2] = req.City

	if s := out.Signals; out.OK() {
		row[3] = strconv.FormatBool(s.Reachable)
		if s.StatusCode != nil {
			row[4] = strconv.Itoa(*s.StatusCode)
		}
		row[5] = strconv.FormatBool(s.UsesTLS)
		if s.TLSValid != nil {
			row[6] = strconv.FormatBool(*s.TLSValid)
		}
		row[7] = strconv.FormatInt(s.ResponseTimeMS, 10)
		row[8] = s.FinalURL
		if s.PageTitle != nil {
			row[9] = *s.PageTitle
		}
		return row
	}

	row[10] = out.Kind()
	if out.Failure != nil {
		row[11] = out.Failure.Detail
	}
	return row
}

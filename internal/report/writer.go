// Package report streams findings to a flat report file, optionally
// deduplicating rows across the whole run.
package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Row is one report line.
type Row struct {
	Detector string `parquet:"detector" json:"detector"`
	Value    string `parquet:"value" json:"value"`
	Path     string `parquet:"path" json:"path"`
	DocID    string `parquet:"doc_id" json:"doc_id"`
}

// Writer receives rows in pipeline order. Implementations buffer internally;
// a crash before Close may leave a truncated file.
type Writer interface {
	Write(ctx context.Context, row Row) error
	Rows() int64
	Close() error
}

// Format selects the report file format.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
)

// DetectFormat picks a format from the output file extension.
func DetectFormat(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".parquet") {
		return FormatParquet
	}
	return FormatCSV
}

// New opens a report writer for path in the given format ("" means detect
// from the extension).
func New(path string, format Format) (Writer, error) {
	if format == "" {
		format = DetectFormat(path)
	}

	switch format {
	case FormatCSV:
		return NewCSV(path)
	case FormatParquet:
		return NewParquet(path)
	default:
		return nil, fmt.Errorf("unsupported report format: %s", format)
	}
}

// CSVWriter writes comma-separated rows with a fixed header.
type CSVWriter struct {
	file *os.File
	w    *csv.Writer
	rows int64
}

// NewCSV creates the output file (and any missing parent directories) and
// writes the header row.
func NewCSV(path string) (*CSVWriter, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create report file: %w", err)
	}

	w := csv.NewWriter(file)
	if err := w.Write([]string{"detector", "value", "path", "doc_id"}); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write report header: %w", err)
	}

	return &CSVWriter{file: file, w: w}, nil
}

// Write appends one row.
func (c *CSVWriter) Write(_ context.Context, row Row) error {
	if err := c.w.Write([]string{row.Detector, row.Value, row.Path, row.DocID}); err != nil {
		return fmt.Errorf("failed to write report row: %w", err)
	}
	c.rows++
	return nil
}

// Rows returns the number of rows written so far, header excluded.
func (c *CSVWriter) Rows() int64 {
	return c.rows
}

// Close flushes buffered rows and closes the file.
func (c *CSVWriter) Close() error {
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		c.file.Close()
		return fmt.Errorf("failed to flush report: %w", err)
	}
	return c.file.Close()
}

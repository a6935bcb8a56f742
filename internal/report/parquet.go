package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/segmentio/parquet-go"
)

// ParquetWriter writes the report as a Parquet file with the same columns as
// the CSV format.
type ParquetWriter struct {
	file *os.File
	w    *parquet.GenericWriter[Row]
	rows int64
}

// NewParquet creates the output file and a generic Parquet writer over the
// Row schema.
func NewParquet(path string) (*ParquetWriter, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create report file: %w", err)
	}

	return &ParquetWriter{
		file: file,
		w:    parquet.NewGenericWriter[Row](file),
	}, nil
}

// Write appends one row.
func (p *ParquetWriter) Write(_ context.Context, row Row) error {
	if _, err := p.w.Write([]Row{row}); err != nil {
		return fmt.Errorf("failed to write report row: %w", err)
	}
	p.rows++
	return nil
}

// Rows returns the number of rows written so far.
func (p *ParquetWriter) Rows() int64 {
	return p.rows
}

// Close finalizes the Parquet footer and closes the file.
func (p *ParquetWriter) Close() error {
	if err := p.w.Close(); err != nil {
		p.file.Close()
		return fmt.Errorf("failed to finalize parquet report: %w", err)
	}
	return p.file.Close()
}

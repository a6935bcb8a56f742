package report

import (
	"context"
	"fmt"
	"strings"
)

// KeySet tracks dedupe keys seen during one run. Add reports whether the key
// was seen for the first time.
type KeySet interface {
	Add(ctx context.Context, key string) (first bool, err error)
	Close() error
}

// MemorySet is the default in-process key set.
type MemorySet struct {
	seen map[string]struct{}
}

// NewMemorySet creates an empty in-memory key set.
func NewMemorySet() *MemorySet {
	return &MemorySet{seen: make(map[string]struct{})}
}

// Add records key, reporting whether it is new.
func (m *MemorySet) Add(_ context.Context, key string) (bool, error) {
	if _, ok := m.seen[key]; ok {
		return false, nil
	}
	m.seen[key] = struct{}{}
	return true, nil
}

// Close is a no-op for the in-memory set.
func (m *MemorySet) Close() error {
	return nil
}

// dedupedWriter skips rows whose {detector, value, path} key was already
// seen this run. The doc_id is deliberately excluded from the key: the same
// value at the same virtual path collapses to one row even across physical
// documents. Skipped rows do not count toward Rows.
type dedupedWriter struct {
	inner Writer
	keys  KeySet
}

// Deduped wraps w with run-scoped row deduplication backed by keys.
func Deduped(w Writer, keys KeySet) Writer {
	return &dedupedWriter{inner: w, keys: keys}
}

func (d *dedupedWriter) Write(ctx context.Context, row Row) error {
	key := dedupeKey(row)
	first, err := d.keys.Add(ctx, key)
	if err != nil {
		return fmt.Errorf("dedupe lookup failed: %w", err)
	}
	if !first {
		return nil
	}
	return d.inner.Write(ctx, row)
}

func (d *dedupedWriter) Rows() int64 {
	return d.inner.Rows()
}

func (d *dedupedWriter) Close() error {
	keysErr := d.keys.Close()
	if err := d.inner.Close(); err != nil {
		return err
	}
	return keysErr
}

// dedupeKey joins the key parts with an unlikely separator.
func dedupeKey(row Row) string {
	return strings.Join([]string{row.Detector, row.Value, row.Path}, "\x1f")
}

// Package update converts per-document findings into idempotent bulk update
// operations against the document store.
package update

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pii-sweep/piisweep/internal/extract"
	"github.com/pii-sweep/piisweep/internal/store"
)

// Config contains update batching settings.
type Config struct {
	BulkSize    int
	FieldMap    map[string]string
	FieldPrefix string
}

// retryOnConflict is the store-side retry count for concurrent writers.
const retryOnConflict = 3

// appendScript adds each value to its list field only when absent, creating
// missing fields as empty lists. Repeated application is a no-op, which keeps
// re-runs and conflict retries safe.
const appendScript = `
def up = params.upd;
for (entry in up.entrySet()) {
  def f = entry.getKey();
  def vals = entry.getValue();
  if (ctx._source[f] == null) { ctx._source[f] = new ArrayList(); }
  for (v in vals) {
    if (!ctx._source[f].contains(v)) { ctx._source[f].add(v); }
  }
}
`

// maxItemErrorsLogged bounds how many per-item bulk errors are reported.
const maxItemErrorsLogged = 5

// TargetField resolves the list field a detector's findings are appended to.
// An explicit mapping wins; otherwise the detector name is lower-cased with
// spaces replaced by underscores and prefixed, with nas -> nas_norm as the
// built-in special case.
func TargetField(detector string, fieldMap map[string]string, prefix string) string {
	if field, ok := fieldMap[detector]; ok {
		return field
	}

	field := strings.ReplaceAll(strings.ToLower(detector), " ", "_")
	if field == "nas" {
		return "nas_norm"
	}
	if prefix != "" {
		return prefix + field
	}
	return field
}

// Batcher buffers update operations and submits them in bounded-size bulk
// requests. Not safe for concurrent use; the sweep is single-threaded.
type Batcher struct {
	client *store.Client
	index  string
	cfg    Config
	lines  [][]byte // alternating header/body NDJSON lines
	ops    int
	sent   int64
	logger *zap.Logger
}

// NewBatcher creates a batcher writing to index through client.
func NewBatcher(client *store.Client, index string, cfg Config, logger *zap.Logger) *Batcher {
	if cfg.BulkSize <= 0 {
		cfg.BulkSize = 1000
	}
	return &Batcher{
		client: client,
		index:  index,
		cfg:    cfg,
		logger: logger,
	}
}

// Add queues one update operation for a document's findings. Findings are
// grouped by target field and deduplicated first-seen within each field.
// Documents without an id or without findings produce no operation. A full
// buffer is flushed before returning.
func (b *Batcher) Add(ctx context.Context, docID string, findings []extract.Finding) error {
	if docID == "" || len(findings) == 0 {
		return nil
	}

	fieldOrder, fieldValues := b.group(findings)
	if len(fieldOrder) == 0 {
		return nil
	}

	upd := make(map[string][]string, len(fieldOrder))
	for _, field := range fieldOrder {
		upd[field] = fieldValues[field]
	}

	header, err := json.Marshal(map[string]any{
		"update": map[string]any{
			"_index":            b.index,
			"_id":               docID,
			"retry_on_conflict": retryOnConflict,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to encode update header: %w", err)
	}

	body, err := json.Marshal(map[string]any{
		"script": map[string]any{
			"lang":   "painless",
			"source": appendScript,
			"params": map[string]any{"upd": upd},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to encode update body: %w", err)
	}

	b.lines = append(b.lines, header, body)
	b.ops++

	if b.ops >= b.cfg.BulkSize {
		return b.Flush(ctx)
	}
	return nil
}

// group maps findings to target fields, preserving first-seen field order and
// deduplicating values within each field.
func (b *Batcher) group(findings []extract.Finding) ([]string, map[string][]string) {
	var order []string
	values := make(map[string][]string)

	for _, f := range findings {
		field := TargetField(f.Detector, b.cfg.FieldMap, b.cfg.FieldPrefix)
		if _, ok := values[field]; !ok {
			order = append(order, field)
		}
		if !contains(values[field], f.Value) {
			values[field] = append(values[field], f.Value)
		}
	}

	return order, values
}

// Flush submits all buffered operations as one bulk request and clears the
// buffer. An HTTP-level failure is fatal; item-level errors in a 2xx response
// are logged (first few only) and the run continues.
func (b *Batcher) Flush(ctx context.Context) error {
	if b.ops == 0 {
		return nil
	}

	payload := bytes.Join(b.lines, []byte("\n"))
	payload = append(payload, '\n')

	resp, err := b.client.Bulk(ctx, payload)
	if err != nil {
		return fmt.Errorf("bulk update failed: %w", err)
	}

	if resp.Errors {
		errs := resp.ItemErrors()
		sample := errs
		if len(sample) > maxItemErrorsLogged {
			sample = sample[:maxItemErrorsLogged]
		}
		b.logger.Warn("Bulk response reported item errors",
			zap.Int("failed_items", len(errs)),
			zap.Strings("sample", sample),
		)
	}

	b.sent += int64(b.ops)
	b.logger.Debug("Bulk batch submitted", zap.Int("operations", b.ops))

	b.lines = b.lines[:0]
	b.ops = 0
	return nil
}

// Sent returns the number of update operations submitted so far.
func (b *Batcher) Sent() int64 {
	return b.sent
}

func contains(values []string, v string) bool {
	for _, existing := range values {
		if existing == v {
			return true
		}
	}
	return false
}

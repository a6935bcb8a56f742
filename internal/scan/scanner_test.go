package scan

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"go.uber.org/zap"

	"github.com/pii-sweep/piisweep/internal/detect"
	"github.com/pii-sweep/piisweep/internal/extract"
	"github.com/pii-sweep/piisweep/internal/report"
	"github.com/pii-sweep/piisweep/internal/store"
	"github.com/pii-sweep/piisweep/internal/update"
)

// sweepServer serves scroll pages of the given documents plus the bulk
// endpoint, recording bulk bodies.
type sweepServer struct {
	docs      []map[string]any
	pageSize  int
	bulkCalls [][]byte
	srv       *httptest.Server
}

func newSweepServer(t *testing.T, docs []map[string]any, pageSize int) *sweepServer {
	t.Helper()
	s := &sweepServer{docs: docs, pageSize: pageSize}
	page := 0

	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/_bulk" {
			var buf bytes.Buffer
			buf.ReadFrom(r.Body)
			s.bulkCalls = append(s.bulkCalls, buf.Bytes())
			json.NewEncoder(w).Encode(map[string]any{"errors": false, "items": []any{}})
			return
		}

		lo := page * pageSize
		hi := lo + pageSize
		if lo > len(docs) {
			lo = len(docs)
		}
		if hi > len(docs) {
			hi = len(docs)
		}
		page++

		hits := make([]map[string]any, 0, hi-lo)
		for _, doc := range docs[lo:hi] {
			hits = append(hits, map[string]any{"_id": doc["_id"], "_source": doc["_source"]})
		}
		json.NewEncoder(w).Encode(map[string]any{
			"_scroll_id": "cursor",
			"hits":       map[string]any{"hits": hits},
		})
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func testScanner(t *testing.T, srvURL, outPath string, dedupe, updates bool, bulkSize int) (*Scanner, *store.Client) {
	t.Helper()
	log := zap.NewNop()

	client, err := store.New(store.Config{URL: srvURL}, log)
	if err != nil {
		t.Fatal(err)
	}

	pipeline := extract.New([]detect.Detector{detect.NewSIN()}, extract.Config{
		ContentField:    "content",
		AltContentField: "attachment.content",
		PathField:       "path.virtual",
	}, log)

	writer, err := report.New(outPath, "")
	if err != nil {
		t.Fatal(err)
	}
	if dedupe {
		writer = report.Deduped(writer, report.NewMemorySet())
	}

	var batcher *update.Batcher
	if updates {
		batcher = update.NewBatcher(client, "docs", update.Config{BulkSize: bulkSize, FieldPrefix: "pii."}, log)
	}

	query, err := BuildQuery("", "content", "path.virtual")
	if err != nil {
		t.Fatal(err)
	}

	cfg := Config{
		Index:     "docs",
		PageSize:  2,
		ScrollTTL: "2m",
		Query:     query,
		OutPath:   outPath,
	}
	return New(client, pipeline, writer, batcher, cfg, log), client
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	return records
}

func TestRunEndToEnd(t *testing.T) {
	docs := []map[string]any{
		{"_id": "1", "_source": map[string]any{
			"content": "SIN 123 456 789 here",
			"path":    map[string]any{"virtual": "/a/b"},
		}},
	}
	srv := newSweepServer(t, docs, 2)
	outPath := filepath.Join(t.TempDir(), "out.csv")

	scanner, _ := testScanner(t, srv.srv.URL, outPath, false, true, 1000)
	summary, err := scanner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.DocsScanned != 1 || summary.ValuesExtracted != 1 || summary.UpdatesSent != 1 {
		t.Errorf("summary = %+v", summary)
	}

	records := readCSV(t, outPath)
	want := [][]string{
		{"detector", "value", "path", "doc_id"},
		{"NAS", "123-456-789", "/a/b", "1"},
	}
	if !reflect.DeepEqual(records, want) {
		t.Errorf("report = %v, want %v", records, want)
	}

	if len(srv.bulkCalls) != 1 {
		t.Fatalf("bulk calls = %d, want 1", len(srv.bulkCalls))
	}
	lines := splitNDJSON(t, srv.bulkCalls[0])
	if len(lines) != 2 {
		t.Fatalf("NDJSON lines = %d, want 2", len(lines))
	}
	upd := lines[1]["script"].(map[string]any)["params"].(map[string]any)["upd"].(map[string]any)
	values, ok := upd["nas_norm"].([]any)
	if !ok || len(values) != 1 || values[0] != "123-456-789" {
		t.Errorf("update targets %v, want nas_norm=[123-456-789]", upd)
	}
}

func TestRunDedupe(t *testing.T) {
	docs := []map[string]any{
		{"_id": "1", "_source": map[string]any{
			"content": "123 456 789",
			"path":    map[string]any{"virtual": "/same"},
		}},
		{"_id": "2", "_source": map[string]any{
			"content": "123 456 789",
			"path":    map[string]any{"virtual": "/same"},
		}},
	}

	t.Run("Enabled", func(t *testing.T) {
		srv := newSweepServer(t, docs, 2)
		outPath := filepath.Join(t.TempDir(), "out.csv")
		scanner, _ := testScanner(t, srv.srv.URL, outPath, true, false, 1000)

		summary, err := scanner.Run(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if summary.ValuesExtracted != 1 {
			t.Errorf("ValuesExtracted = %d, want 1 with dedupe", summary.ValuesExtracted)
		}
		if rows := readCSV(t, outPath); len(rows) != 2 { // header + 1
			t.Errorf("rows = %v", rows)
		}
	})

	t.Run("Disabled", func(t *testing.T) {
		srv := newSweepServer(t, docs, 2)
		outPath := filepath.Join(t.TempDir(), "out.csv")
		scanner, _ := testScanner(t, srv.srv.URL, outPath, false, false, 1000)

		summary, err := scanner.Run(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if summary.ValuesExtracted != 2 {
			t.Errorf("ValuesExtracted = %d, want 2 without dedupe", summary.ValuesExtracted)
		}
	})
}

func TestRunSkipsDocsWithoutText(t *testing.T) {
	docs := []map[string]any{
		{"_id": "1", "_source": map[string]any{"other": "field"}},
		{"_id": "2", "_source": map[string]any{"content": "987654321"}},
	}
	srv := newSweepServer(t, docs, 2)
	outPath := filepath.Join(t.TempDir(), "out.csv")
	scanner, _ := testScanner(t, srv.srv.URL, outPath, false, false, 1000)

	summary, err := scanner.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if summary.DocsScanned != 2 {
		t.Errorf("DocsScanned = %d, want 2", summary.DocsScanned)
	}
	if summary.ValuesExtracted != 1 {
		t.Errorf("ValuesExtracted = %d, want 1", summary.ValuesExtracted)
	}
}

func TestRunBatchFlushes(t *testing.T) {
	var docs []map[string]any
	for _, id := range []string{"1", "2", "3", "4", "5"} {
		docs = append(docs, map[string]any{
			"_id":     id,
			"_source": map[string]any{"content": "sin 123 456 789"},
		})
	}
	srv := newSweepServer(t, docs, 2)
	outPath := filepath.Join(t.TempDir(), "out.csv")
	scanner, _ := testScanner(t, srv.srv.URL, outPath, false, true, 2)

	summary, err := scanner.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if summary.UpdatesSent != 5 {
		t.Errorf("UpdatesSent = %d, want 5", summary.UpdatesSent)
	}
	if len(srv.bulkCalls) != 3 {
		t.Errorf("bulk submissions = %d, want 3 (2+2+1)", len(srv.bulkCalls))
	}
}

func TestRunStoreFailureIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	outPath := filepath.Join(t.TempDir(), "out.csv")
	scanner, _ := testScanner(t, srv.URL, outPath, false, false, 1000)

	_, err := scanner.Run(context.Background())
	if err == nil {
		t.Fatal("expected fatal error on store failure")
	}
	// Report file must exist and be closed with at least the header.
	records := readCSV(t, outPath)
	if len(records) != 1 || records[0][0] != "detector" {
		t.Errorf("report after failure = %v", records)
	}
}

func splitNDJSON(t *testing.T, body []byte) []map[string]any {
	t.Helper()
	var lines []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(body))
	sc.Buffer(make([]byte, 1024*1024), 1024*1024)
	for sc.Scan() {
		if len(bytes.TrimSpace(sc.Bytes())) == 0 {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("bad NDJSON: %v", err)
		}
		lines = append(lines, m)
	}
	return lines
}

func TestBuildQuery(t *testing.T) {
	t.Run("Default", func(t *testing.T) {
		query, err := BuildQuery("", "content", "path.virtual")
		if err != nil {
			t.Fatal(err)
		}
		src := query["_source"].([]string)
		if !reflect.DeepEqual(src, []string{"content", "path"}) {
			t.Errorf("_source = %v", src)
		}
		if _, ok := query["query"].(map[string]any)["match_all"]; !ok {
			t.Error("default query is not match_all")
		}
	})

	t.Run("CustomFileExtendsSource", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "query.json")
		content := `{"query":{"term":{"kind":"report"}},"_source":["title","content"]}`
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}

		query, err := BuildQuery(path, "content", "path.virtual")
		if err != nil {
			t.Fatal(err)
		}
		src := query["_source"].([]string)
		if !reflect.DeepEqual(src, []string{"title", "content", "path"}) {
			t.Errorf("_source = %v", src)
		}
		if _, ok := query["query"].(map[string]any)["term"]; !ok {
			t.Error("custom query lost")
		}
	})

	t.Run("BadFile", func(t *testing.T) {
		if _, err := BuildQuery(filepath.Join(t.TempDir(), "missing.json"), "content", "p"); err == nil {
			t.Fatal("expected error for missing query file")
		}
	})

	t.Run("BadJSON", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "query.json")
		os.WriteFile(path, []byte("{not json"), 0o644)
		if _, err := BuildQuery(path, "content", "p"); err == nil {
			t.Fatal("expected error for invalid JSON")
		}
	})
}

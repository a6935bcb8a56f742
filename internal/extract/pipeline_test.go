package extract

import (
	"reflect"
	"regexp"
	"testing"

	"go.uber.org/zap"

	"github.com/pii-sweep/piisweep/internal/detect"
	"github.com/pii-sweep/piisweep/internal/store"
)

func defaultConfig() Config {
	return Config{
		ContentField:    "content",
		AltContentField: "attachment.content",
		PathField:       "path.virtual",
	}
}

func TestExtract(t *testing.T) {
	log := zap.NewNop()
	detectors := []detect.Detector{detect.NewSIN()}

	t.Run("PrimaryField", func(t *testing.T) {
		p := New(detectors, defaultConfig(), log)
		hit := &store.Hit{
			ID: "1",
			Source: store.Source{
				"content": "SIN 123 456 789 here",
				"path":    map[string]any{"virtual": "/a/b"},
			},
		}

		res := p.Extract(hit)
		if res.Skipped {
			t.Fatal("document skipped unexpectedly")
		}
		if res.Path != "/a/b" {
			t.Errorf("Path = %q, want /a/b", res.Path)
		}
		want := []Finding{{Detector: "NAS", Value: "123-456-789"}}
		if !reflect.DeepEqual(res.Findings, want) {
			t.Errorf("Findings = %v, want %v", res.Findings, want)
		}
	})

	t.Run("FallbackField", func(t *testing.T) {
		p := New(detectors, defaultConfig(), log)
		hit := &store.Hit{
			ID: "2",
			Source: store.Source{
				"attachment": map[string]any{"content": "alt 987654321"},
			},
		}

		res := p.Extract(hit)
		if res.Skipped || len(res.Findings) != 1 {
			t.Fatalf("Findings = %v, Skipped = %v", res.Findings, res.Skipped)
		}
		if res.Findings[0].Value != "987-654-321" {
			t.Errorf("Value = %q", res.Findings[0].Value)
		}
	})

	t.Run("BothFieldsEmptySkips", func(t *testing.T) {
		p := New(detectors, defaultConfig(), log)
		hit := &store.Hit{ID: "3", Source: store.Source{"other": "x"}}

		res := p.Extract(hit)
		if !res.Skipped {
			t.Error("expected Skipped for document without text")
		}
		if len(res.Findings) != 0 {
			t.Errorf("Findings = %v, want none", res.Findings)
		}
	})

	t.Run("MissingPathIsEmpty", func(t *testing.T) {
		p := New(detectors, defaultConfig(), log)
		hit := &store.Hit{ID: "4", Source: store.Source{"content": "no findings"}}

		res := p.Extract(hit)
		if res.Path != "" {
			t.Errorf("Path = %q, want empty", res.Path)
		}
		if res.Skipped {
			t.Error("document with text must not be skipped")
		}
	})

	t.Run("SeparatorNormalizationApplied", func(t *testing.T) {
		p := New(detectors, defaultConfig(), log)
		// Non-breaking spaces between digit groups.
		hit := &store.Hit{ID: "5", Source: store.Source{"content": "123 456 789"}}

		res := p.Extract(hit)
		if len(res.Findings) != 1 || res.Findings[0].Value != "123-456-789" {
			t.Errorf("Findings = %v", res.Findings)
		}
	})

	t.Run("DetectorOrderPreserved", func(t *testing.T) {
		ordered := []detect.Detector{
			{Name: "B_WORD", Pattern: regexp.MustCompile(`bbb`)},
			{Name: "A_WORD", Pattern: regexp.MustCompile(`aaa`)},
		}
		p := New(ordered, defaultConfig(), log)
		hit := &store.Hit{ID: "6", Source: store.Source{"content": "aaa bbb aaa"}}

		res := p.Extract(hit)
		want := []Finding{
			{Detector: "B_WORD", Value: "bbb"},
			{Detector: "A_WORD", Value: "aaa"},
			{Detector: "A_WORD", Value: "aaa"},
		}
		if !reflect.DeepEqual(res.Findings, want) {
			t.Errorf("Findings = %v, want %v", res.Findings, want)
		}
	})
}

// Package extract orchestrates per-document PII extraction: field
// resolution, separator normalization and detector execution.
package extract

import (
	"go.uber.org/zap"

	"github.com/pii-sweep/piisweep/internal/detect"
	"github.com/pii-sweep/piisweep/internal/normalize"
	"github.com/pii-sweep/piisweep/internal/store"
)

// Config contains field resolution settings.
type Config struct {
	ContentField    string `yaml:"content_field" mapstructure:"content_field"`
	AltContentField string `yaml:"alt_content_field" mapstructure:"alt_content_field"`
	PathField       string `yaml:"path_field" mapstructure:"path_field"`
}

// Finding is one (detector, normalized value) pair extracted from a document.
type Finding struct {
	Detector string
	Value    string
}

// Result is the outcome of extracting one document. A document whose text
// fields were both empty has an empty Findings slice and Skipped set.
type Result struct {
	DocID    string
	Path     string
	Findings []Finding
	Skipped  bool
}

// Pipeline runs every registered detector against each document's text.
type Pipeline struct {
	detectors []detect.Detector
	cfg       Config
	logger    *zap.Logger
}

// New creates an extraction pipeline.
func New(detectors []detect.Detector, cfg Config, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		detectors: detectors,
		cfg:       cfg,
		logger:    logger,
	}
}

// Extract resolves the document's text and virtual path, then collects
// findings in detector order, match order within each detector.
func (p *Pipeline) Extract(hit *store.Hit) Result {
	result := Result{DocID: hit.ID}

	text := p.text(hit.Source)
	if text == "" {
		result.Skipped = true
		return result
	}

	result.Path = hit.Source.Text(p.cfg.PathField)

	text = normalize.Separators(text)

	for _, det := range p.detectors {
		for _, val := range det.Find(text) {
			result.Findings = append(result.Findings, Finding{Detector: det.Name, Value: val})
		}
	}

	if len(result.Findings) > 0 {
		p.logger.Debug("Document findings",
			zap.String("doc_id", hit.ID),
			zap.Int("count", len(result.Findings)),
		)
	}

	return result
}

// text returns the primary content field when present and non-empty, falling
// back to the dotted-path alternate field.
func (p *Pipeline) text(src store.Source) string {
	if s := src.Text(p.cfg.ContentField); s != "" {
		return s
	}
	if p.cfg.AltContentField != "" {
		return src.Text(p.cfg.AltContentField)
	}
	return ""
}

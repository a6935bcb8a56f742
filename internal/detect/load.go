package detect

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// fileSpec is one detector definition in a YAML detectors file.
type fileSpec struct {
	Name      string   `yaml:"name"`
	Regex     string   `yaml:"regex"`
	Flags     flagList `yaml:"flags"`
	Normalize string   `yaml:"normalize"`
	Desc      string   `yaml:"desc"`
}

// flagList accepts either a single flag name or a list of them.
type flagList []string

func (f *flagList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		*f = flagList{s}
		return nil
	case yaml.SequenceNode:
		var ss []string
		if err := value.Decode(&ss); err != nil {
			return err
		}
		*f = flagList(ss)
		return nil
	default:
		return fmt.Errorf("flags must be a string or a list of strings")
	}
}

// inlineFlags translates flag names to Go inline regexp flags. VERBOSE and
// unknown names have no Go equivalent and are skipped.
func inlineFlags(flags []string, log *zap.Logger) string {
	var b strings.Builder
	for _, f := range flags {
		switch strings.ToUpper(strings.TrimSpace(f)) {
		case "IGNORECASE":
			b.WriteByte('i')
		case "MULTILINE":
			b.WriteByte('m')
		case "DOTALL":
			b.WriteByte('s')
		default:
			log.Debug("Ignoring unsupported regex flag", zap.String("flag", f))
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return "(?" + b.String() + ")"
}

// resolveNormalizer maps a declared normalizer name to one of the known
// normalizers. Unknown names fall back to pass-through, never an error.
func resolveNormalizer(name string, log *zap.Logger) Normalizer {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "":
		return nil
	case "nas":
		return NormalizeSIN
	default:
		log.Debug("Unknown normalizer, using pass-through", zap.String("normalizer", name))
		return nil
	}
}

// Load reads extra detector definitions from a YAML file. A regex that fails
// to compile fails the whole load.
func Load(path string, log *zap.Logger) ([]Detector, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read detectors file: %w", err)
	}

	var specs []fileSpec
	if err := yaml.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("failed to parse detectors file: %w", err)
	}

	detectors := make([]Detector, 0, len(specs))
	for _, spec := range specs {
		if spec.Name == "" || spec.Regex == "" {
			return nil, fmt.Errorf("detector entry missing name or regex")
		}

		pattern, err := regexp.Compile(inlineFlags(spec.Flags, log) + spec.Regex)
		if err != nil {
			return nil, fmt.Errorf("failed to compile pattern for detector %q: %w", spec.Name, err)
		}

		detectors = append(detectors, Detector{
			Name:      spec.Name,
			Pattern:   pattern,
			Normalize: resolveNormalizer(spec.Normalize, log),
			Desc:      spec.Desc,
		})
	}

	return detectors, nil
}

// Registry builds the run's detector list: the built-in SIN detector first,
// then any detectors defined in path. A missing or unparseable detectors file
// is not fatal; the run proceeds with built-ins only.
func Registry(path string, log *zap.Logger) []Detector {
	detectors := []Detector{NewSIN()}

	if path == "" {
		return detectors
	}

	extra, err := Load(path, log)
	if err != nil {
		log.Warn("Failed to load detectors file, continuing with built-ins",
			zap.String("path", path),
			zap.Error(err),
		)
		return detectors
	}

	detectors = append(detectors, extra...)

	log.Info("Detector registry built",
		zap.Int("builtin", 1),
		zap.Int("loaded", len(extra)),
	)

	return detectors
}

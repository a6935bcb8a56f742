package scan

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// BuildQuery returns the search body for the sweep. With no query file it is
// a match_all restricted to the fields extraction needs. A custom query file
// is passed through with its _source list extended so the content field and
// the path field's root segment are always returned.
func BuildQuery(queryFile, contentField, pathField string) (map[string]any, error) {
	pathRoot := strings.SplitN(pathField, ".", 2)[0]

	if queryFile == "" {
		return map[string]any{
			"query":   map[string]any{"match_all": map[string]any{}},
			"_source": []string{contentField, pathRoot},
		}, nil
	}

	data, err := os.ReadFile(queryFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read query file: %w", err)
	}

	var query map[string]any
	if err := json.Unmarshal(data, &query); err != nil {
		return nil, fmt.Errorf("failed to parse query file: %w", err)
	}

	var fields []string
	seen := make(map[string]bool)
	if raw, ok := query["_source"].([]any); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok && !seen[s] {
				fields = append(fields, s)
				seen[s] = true
			}
		}
	}
	for _, required := range []string{contentField, pathRoot} {
		if !seen[required] {
			fields = append(fields, required)
			seen[required] = true
		}
	}
	query["_source"] = fields

	return query, nil
}

package store

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Source is the semi-structured document subtree returned with each hit.
type Source map[string]any

// Lookup walks a dotted path through nested maps. It returns false when any
// segment is missing or an intermediate value is not a map.
func (s Source) Lookup(path string) (any, bool) {
	var cur any = map[string]any(s)

	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}

	return cur, true
}

// Text resolves a dotted path to a string. Missing paths, nil leaves and
// non-scalar leaves yield the empty string.
func (s Source) Text(path string) string {
	v, ok := s.Lookup(path)
	if !ok || v == nil {
		return ""
	}
	return stringify(v)
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}

// Hit is one document returned by a scroll page.
type Hit struct {
	ID     string `json:"_id"`
	Source Source `json:"_source"`
}

// searchResponse is the relevant subset of a search or scroll response.
type searchResponse struct {
	ScrollID string `json:"_scroll_id"`
	Hits     struct {
		Hits []Hit `json:"hits"`
	} `json:"hits"`
}

// BulkItem is the per-operation result inside a bulk response.
type BulkItem struct {
	ID     string          `json:"_id"`
	Status int             `json:"status"`
	Error  json.RawMessage `json:"error,omitempty"`
}

// BulkResponse is the store's answer to a bulk submission. Items mirror the
// request order; each maps the action name (e.g. "update") to its result.
type BulkResponse struct {
	Errors bool                  `json:"errors"`
	Items  []map[string]BulkItem `json:"items"`
}

// ItemErrors returns a description of every failed item, in request order.
func (r *BulkResponse) ItemErrors() []string {
	var errs []string
	for _, item := range r.Items {
		for action, result := range item {
			if len(result.Error) > 0 {
				errs = append(errs, fmt.Sprintf("%s id=%s status=%d error=%s",
					action, result.ID, result.Status, string(result.Error)))
			}
		}
	}
	return errs
}

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"
)

// Scroll is a pull-based iterator over every hit matching a query, fetched
// page by page through the store's scroll protocol. Usage follows the
// scanner pattern:
//
//	sc := client.Scroll(index, query, 500, "2m")
//	for sc.Next(ctx) {
//		hit := sc.Hit()
//		...
//	}
//	if err := sc.Err(); err != nil { ... }
//
// Any transport failure or non-2xx page response ends iteration with a
// non-nil Err. There are no retries and no resumption.
type Scroll struct {
	client *Client
	index  string
	query  map[string]any
	size   int
	ttl    string

	started  bool
	done     bool
	scrollID string
	hits     []Hit
	pos      int
	err      error
}

// Scroll starts a scrolling search over index. The query body is sent as-is,
// with the page size merged in. ttl is the server-side cursor time-to-live
// (e.g. "2m").
func (c *Client) Scroll(index string, query map[string]any, size int, ttl string) *Scroll {
	return &Scroll{
		client: c,
		index:  index,
		query:  query,
		size:   size,
		ttl:    ttl,
	}
}

// Next advances to the next hit. It returns false at end of results or on
// the first error; check Err after the loop.
func (s *Scroll) Next(ctx context.Context) bool {
	for {
		if s.err != nil || (s.done && s.pos >= len(s.hits)) {
			return false
		}

		if !s.started {
			s.started = true
			s.fetchInitial(ctx)
			continue
		}

		if s.pos < len(s.hits) {
			s.pos++
			return true
		}

		// Batch consumed. Continue only while the previous page had both
		// hits and a cursor token.
		if len(s.hits) == 0 || s.scrollID == "" {
			s.done = true
			return false
		}
		s.fetchNext(ctx)
	}
}

// Hit returns the current hit. Only valid after Next returned true.
func (s *Scroll) Hit() *Hit {
	return &s.hits[s.pos-1]
}

// Err returns the error that ended iteration, if any.
func (s *Scroll) Err() error {
	return s.err
}

func (s *Scroll) fetchInitial(ctx context.Context) {
	body := map[string]any{"size": s.size}
	for k, v := range s.query {
		body[k] = v
	}

	path := fmt.Sprintf("/%s/_search?scroll=%s", url.PathEscape(s.index), url.QueryEscape(s.ttl))
	s.fetch(ctx, path, body)
}

func (s *Scroll) fetchNext(ctx context.Context) {
	body := map[string]any{
		"scroll":    s.ttl,
		"scroll_id": s.scrollID,
	}
	s.fetch(ctx, "/_search/scroll", body)
}

func (s *Scroll) fetch(ctx context.Context, path string, body map[string]any) {
	payload, err := json.Marshal(body)
	if err != nil {
		s.err = fmt.Errorf("failed to encode scroll request: %w", err)
		return
	}

	data, err := s.client.do(ctx, http.MethodPost, path, "application/json", payload)
	if err != nil {
		s.err = err
		return
	}

	var resp searchResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		s.err = fmt.Errorf("failed to decode scroll response: %w", err)
		return
	}

	s.scrollID = resp.ScrollID
	s.hits = resp.Hits.Hits
	s.pos = 0

	s.client.logger.Debug("Scroll page fetched",
		zap.Int("hits", len(s.hits)),
		zap.Bool("has_cursor", s.scrollID != ""),
	)
}

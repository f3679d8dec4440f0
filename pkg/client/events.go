package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"

	"github.com/telemetrydock/duckport/pkg/export"
	"github.com/telemetrydock/duckport/pkg/timerange"
)

// Endpoints of the analytics API.
const (
	EndpointExport = "/api/2.0/export"
	EndpointEngage = "/api/2.0/engage"
)

// HeaderNextCursor carries the continuation cursor for the raw export
// endpoint; its absence means the chunk is exhausted.
const HeaderNextCursor = "X-Next-Cursor"

// maxLineBytes caps one event line. Export payloads routinely exceed
// bufio.Scanner's 64 KiB default on property-heavy events.
const maxLineBytes = 4 << 20

// EventsFetcher fetches raw event pages from the export endpoint. The
// response is line-delimited JSON, one event per line; continuation is via
// the X-Next-Cursor response header. Implements export.PageFetcher.
type EventsFetcher struct {
	client *Client
}

// Events returns a page fetcher over the raw event export endpoint.
func (c *Client) Events() *EventsFetcher {
	return &EventsFetcher{client: c}
}

// FetchPage implements export.PageFetcher.
func (f *EventsFetcher) FetchPage(ctx context.Context, iv timerange.Interval, cursor export.Cursor) (*export.Page, error) {
	query := map[string]string{
		"from_date": iv.From.Format(timerange.DateFormat),
		"to_date":   iv.To.Format(timerange.DateFormat),
	}
	if cursor != "" {
		query["cursor"] = string(cursor)
	}

	resp, err := f.client.get(ctx, EndpointExport, query)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	page := &export.Page{
		Next: export.Cursor(resp.Header.Get(HeaderNextCursor)),
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var rec export.Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("decode event line %d: %w", line, err)
		}
		page.Records = append(page.Records, flattenEvent(rec))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read export stream: %w", err)
	}

	return page, nil
}

// flattenEvent hoists the nested properties bag next to the event name, the
// shape the sink's column extraction expects.
func flattenEvent(rec export.Record) export.Record {
	props, ok := rec["properties"].(map[string]any)
	if !ok {
		return rec
	}

	flat := make(export.Record, len(props)+1)
	for k, v := range props {
		flat[k] = v
	}
	if event, ok := rec["event"]; ok {
		flat["event"] = event
	}
	return flat
}

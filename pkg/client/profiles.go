package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/telemetrydock/duckport/pkg/export"
	"github.com/telemetrydock/duckport/pkg/timerange"
)

// defaultEngagePageSize is the page size requested from the profiles
// endpoint.
const defaultEngagePageSize = 1000

// ProfilesFetcher fetches user profile pages from the engage endpoint,
// paginated by a server-issued session id plus a page number. Implements
// export.PageFetcher.
type ProfilesFetcher struct {
	client *Client

	// PageSize overrides the requested page size. Zero uses the default.
	PageSize int
}

// Profiles returns a page fetcher over the profiles endpoint.
func (c *Client) Profiles() *ProfilesFetcher {
	return &ProfilesFetcher{client: c, PageSize: defaultEngagePageSize}
}

// engageResponse is the profiles endpoint response envelope.
type engageResponse struct {
	Results   []export.Record `json:"results"`
	SessionID string          `json:"session_id"`
	Page      int             `json:"page"`
	Total     int             `json:"total"`
}

// FetchPage implements export.PageFetcher. The interval filters profiles on
// last-seen time; the cursor encodes "session_id/page/fetched" so the
// running row count survives across stateless calls.
func (f *ProfilesFetcher) FetchPage(ctx context.Context, iv timerange.Interval, cursor export.Cursor) (*export.Page, error) {
	pageSize := f.PageSize
	if pageSize <= 0 {
		pageSize = defaultEngagePageSize
	}

	query := map[string]string{
		"where": fmt.Sprintf(`properties["$last_seen"] >= "%s" and properties["$last_seen"] <= "%s"`,
			iv.From.Format(timerange.DateFormat), iv.To.Format(timerange.DateFormat)),
		"page_size": strconv.Itoa(pageSize),
	}

	fetched := 0
	if cursor != "" {
		sessionID, pageNum, rows, err := decodeEngageCursor(cursor)
		if err != nil {
			return nil, err
		}
		query["session_id"] = sessionID
		query["page"] = strconv.Itoa(pageNum)
		fetched = rows
	}

	resp, err := f.client.get(ctx, EndpointEngage, query)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body engageResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode engage response: %w", err)
	}

	page := &export.Page{Records: body.Results}
	fetched += len(body.Results)

	// The server may cap the effective page size below the requested one,
	// so a short page alone does not mean exhaustion. Continue until the
	// advertised total is reached; an empty page always ends the session.
	if len(body.Results) > 0 && fetched < body.Total {
		page.Next = encodeEngageCursor(body.SessionID, body.Page+1, fetched)
	}
	return page, nil
}

func encodeEngageCursor(sessionID string, page, fetched int) export.Cursor {
	return export.Cursor(sessionID + "/" + strconv.Itoa(page) + "/" + strconv.Itoa(fetched))
}

func decodeEngageCursor(cursor export.Cursor) (string, int, int, error) {
	parts := strings.SplitN(string(cursor), "/", 3)
	if len(parts) != 3 {
		return "", 0, 0, fmt.Errorf("malformed engage cursor %q", cursor)
	}
	page, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, 0, fmt.Errorf("malformed engage cursor %q: %w", cursor, err)
	}
	fetched, err := strconv.Atoi(parts[2])
	if err != nil {
		return "", 0, 0, fmt.Errorf("malformed engage cursor %q: %w", cursor, err)
	}
	return parts[0], page, fetched, nil
}

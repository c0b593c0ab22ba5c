// Package api is the HTTP client for the remote social platform. It
// exposes the small surface the sync driver and the task executor need:
// cursor-paginated timelines, conversation threads, item detail, and
// posting replies. Rate-limit and auth failures come back as typed
// errors so callers can pause or stop instead of retrying blindly.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/twillot/twillot/internal/store"
)

const defaultTimeout = 30 * time.Second

// headerRateLimitReset carries the unix-seconds time the rate-limit
// window reopens on a 429 response.
const headerRateLimitReset = "X-Rate-Limit-Reset"

// Page is one cursor-delimited slice of a timeline. An empty Items with
// a non-empty Cursor means the category is exhausted; the cursor still
// marks where incremental runs resume.
type Page struct {
	Items  []store.Record `json:"items"`
	Cursor string         `json:"cursor"`
}

// Client talks to the remote platform on behalf of one authenticated
// user. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	userID     string
}

// NewClient builds a client for the given user. baseURL is the API root
// without a trailing slash.
func NewClient(baseURL, token, userID string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    baseURL,
		token:      token,
		userID:     userID,
	}
}

// UserID returns the authenticated user's id.
func (c *Client) UserID() string {
	return c.userID
}

// SetTransport replaces the underlying HTTP transport. Used to route
// the client's traffic through the call observer.
func (c *Client) SetTransport(rt http.RoundTripper) {
	c.httpClient.Transport = rt
}

// Timeline fetches one page of the given category. An empty cursor
// requests the first page. Records come back stamped with the client's
// user as owner.
func (c *Client) Timeline(ctx context.Context, category, cursor string) (*Page, error) {
	u := c.baseURL + "/2/timeline/" + url.PathEscape(category)
	if cursor != "" {
		u += "?cursor=" + url.QueryEscape(cursor)
	}

	body, err := c.get(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("fetch %s timeline: %w", category, err)
	}

	var page Page
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("fetch %s timeline: decode: %w", category, err)
	}

	for i := range page.Items {
		page.Items[i].OwnerID = c.userID
		page.Items[i].Category = category
	}
	return &page, nil
}

// Conversation fetches the full self-thread rooted at the given item:
// the ordered texts of the author's follow-up posts. An item with no
// thread yields an empty slice.
func (c *Client) Conversation(ctx context.Context, remoteID string) ([]string, error) {
	body, err := c.get(ctx, c.baseURL+"/2/items/"+url.PathEscape(remoteID)+"/conversation")
	if err != nil {
		return nil, fmt.Errorf("fetch conversation %s: %w", remoteID, err)
	}

	var out struct {
		Items []string `json:"items"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("fetch conversation %s: decode: %w", remoteID, err)
	}
	return out.Items, nil
}

// ItemDetail fetches a single item with its full payload, media
// variants included.
func (c *Client) ItemDetail(ctx context.Context, remoteID string) (*store.Record, error) {
	body, err := c.get(ctx, c.baseURL+"/2/items/"+url.PathEscape(remoteID))
	if err != nil {
		return nil, fmt.Errorf("fetch item %s: %w", remoteID, err)
	}

	var rec store.Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("fetch item %s: decode: %w", remoteID, err)
	}
	rec.OwnerID = c.userID
	return &rec, nil
}

// CreateReply posts text as a reply to the given item and returns the
// created item's id.
func (c *Client) CreateReply(ctx context.Context, targetID, text string) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"text":                text,
		"in_reply_to_post_id": targetID,
	})
	if err != nil {
		return "", fmt.Errorf("create reply to %s: marshal: %w", targetID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/2/replies", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create reply to %s: %w", targetID, err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req)
	if err != nil {
		return "", fmt.Errorf("create reply to %s: %w", targetID, err)
	}

	var out struct {
		CreatedID string `json:"created_id"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("create reply to %s: decode: %w", targetID, err)
	}
	return out.CreatedID, nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

// do executes the request and maps the status code onto the error
// model: 429 becomes RateLimitError carrying the announced reset, 401
// and 403 become AuthError, any other non-2xx is an opaque failure.
func (c *Client) do(req *http.Request) ([]byte, error) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &RateLimitError{ResetAt: parseResetHeader(resp)}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &AuthError{Status: resp.StatusCode}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}

// parseResetHeader reads the reset time off a 429. A missing or
// malformed header falls back to a short flat delay so the caller still
// pauses rather than hammering the endpoint.
func parseResetHeader(resp *http.Response) time.Time {
	const fallbackDelay = 5 * time.Minute

	raw := resp.Header.Get(headerRateLimitReset)
	if raw == "" {
		return time.Now().Add(fallbackDelay)
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Now().Add(fallbackDelay)
	}
	return time.Unix(secs, 0)
}

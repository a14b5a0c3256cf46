// Package thingspeak provides the client for the ThingSpeak channel feeds
// API, used both to test connectivity of a configured location and to fetch
// its most recent reading.
package thingspeak

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/SCYip/BIPH-Air-Monitoring-System/internal/httpclient"
	"github.com/SCYip/BIPH-Air-Monitoring-System/internal/telemetry"
)

// DefaultBaseURL is the public ThingSpeak API endpoint.
const DefaultBaseURL = "https://api.thingspeak.com"

// ErrNoData is returned by LatestFeed when the channel is reachable but has
// no feed entries yet.
var ErrNoData = errors.New("channel has no feed entries")

// ProbeResult is the outcome of a connectivity test. Failures are data, not
// errors: a probe never raises, it reports.
type ProbeResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	HasData bool   `json:"hasData,omitempty"`
}

// Feed is a single channel feed entry. Field slots hold raw string values;
// the campus channels use field1 for CO2 (ppm) and field2 for relative
// humidity (%).
type Feed struct {
	CreatedAt time.Time `json:"created_at"`
	EntryID   int       `json:"entry_id"`
	Field1    string    `json:"field1,omitempty"`
	Field2    string    `json:"field2,omitempty"`
	Field3    string    `json:"field3,omitempty"`
	Field4    string    `json:"field4,omitempty"`
}

// feedsResponse is the wire shape of the feeds.json endpoint.
type feedsResponse struct {
	Channel struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"channel"`
	Feeds []Feed `json:"feeds"`
}

// Client queries the ThingSpeak feeds API.
type Client struct {
	http       httpclient.Client
	baseURL    string
	maxRetries uint
}

// Option is a functional option for configuring the client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint. Used in tests and for proxies.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		// Remove trailing slash
		if len(baseURL) > 0 && baseURL[len(baseURL)-1] == '/' {
			baseURL = baseURL[:len(baseURL)-1]
		}
		c.baseURL = baseURL
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc httpclient.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithMaxRetries sets the retry budget for LatestFeed. Probes never retry.
func WithMaxRetries(n uint) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// NewClient creates a ThingSpeak client with the given options.
func NewClient(opts ...Option) *Client {
	c := &Client{
		http:       httpclient.NewDefaultClient(0),
		baseURL:    DefaultBaseURL,
		maxRetries: 3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TestConnection issues a single GET for the channel's most recent feed
// entry and reports reachability. All network and HTTP failures are caught
// and surfaced in the result; the call is bounded by ctx and the client
// timeout, and performs no retry.
func (c *Client) TestConnection(ctx context.Context, channelID, readKey string) ProbeResult {
	body, err := c.http.Get(ctx, c.feedsURL(channelID, readKey))
	if err != nil {
		slog.DebugContext(ctx, "Connectivity probe failed", "channel", channelID, "error", err)
		telemetry.RecordProbe(false)
		return ProbeResult{Success: false, Message: err.Error()}
	}

	var resp feedsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		telemetry.RecordProbe(false)
		return ProbeResult{Success: false, Message: fmt.Sprintf("unexpected response body: %v", err)}
	}

	telemetry.RecordProbe(true)
	return ProbeResult{
		Success: true,
		Message: "Connection successful",
		HasData: len(resp.Feeds) > 0,
	}
}

// LatestFeed fetches the channel's most recent feed entry, retrying
// transient failures with exponential backoff. Client errors (4xx) and an
// empty channel are not retried.
func (c *Client) LatestFeed(ctx context.Context, channelID, readKey string) (*Feed, error) {
	feedURL := c.feedsURL(channelID, readKey)

	operation := func() (*Feed, error) {
		body, err := c.http.Get(ctx, feedURL)
		if err != nil {
			var httpErr *httpclient.HTTPError
			if errors.As(err, &httpErr) && httpErr.StatusCode >= 400 && httpErr.StatusCode < 500 {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}

		var resp feedsResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("failed to parse feeds response: %w", err))
		}
		if len(resp.Feeds) == 0 {
			return nil, backoff.Permanent(fmt.Errorf("%w: channel %s", ErrNoData, channelID))
		}

		feed := resp.Feeds[len(resp.Feeds)-1]
		return &feed, nil
	}

	feed, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(c.maxRetries),
	)
	telemetry.RecordFeedFetch(err)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch latest feed for channel %s: %w", channelID, err)
	}
	return feed, nil
}

// feedsURL builds the feeds endpoint URL for a channel, requesting the most
// recent result only.
func (c *Client) feedsURL(channelID, readKey string) string {
	return fmt.Sprintf("%s/channels/%s/feeds.json?api_key=%s&results=1",
		c.baseURL, url.PathEscape(channelID), url.QueryEscape(readKey))
}

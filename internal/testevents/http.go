package testevents

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is returned by Client.Rank for unknown items.
var ErrNotFound = errors.New("item not found")

// StatusError is a non-2xx response from the service.
type StatusError struct {
	Status  int
	Code    string
	Message string
}

func (e *StatusError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("http %d", e.Status)
	}
	return fmt.Sprintf("http %d %s: %s", e.Status, e.Code, e.Message)
}

// Client talks to the trending HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client with the given request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// AddEvent posts one event.
func (c *Client) AddEvent(ctx context.Context, ev Event) (AckResponse, error) {
	var ack AckResponse
	err := c.do(ctx, http.MethodPost, "/add_event", ev, &ack)
	return ack, err
}

// Trending fetches the top count items.
func (c *Client) Trending(ctx context.Context, count int) ([]Entry, error) {
	var entries []Entry
	err := c.do(ctx, http.MethodGet, "/trending?count="+strconv.Itoa(count), nil, &entries)
	return entries, err
}

// Rank fetches one item's position.
func (c *Client) Rank(ctx context.Context, itemID string) (Entry, error) {
	var entry Entry
	err := c.do(ctx, http.MethodGet, "/trending/"+url.PathEscape(itemID), nil, &entry)
	var se *StatusError
	if errors.As(err, &se) && se.Status == http.StatusNotFound {
		return Entry{}, fmt.Errorf("%s: %w", itemID, ErrNotFound)
	}
	return entry, err
}

// Health checks /healthz.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

// Stats fetches /stats.
func (c *Client) Stats(ctx context.Context) (map[string]any, error) {
	var stats map[string]any
	err := c.do(ctx, http.MethodGet, "/stats", nil, &stats)
	return stats, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader = http.NoBody
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < StatusOK || resp.StatusCode >= StatusMultipleChoices {
		se := &StatusError{Status: resp.StatusCode}
		var eb struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &eb) == nil {
			se.Code, se.Message = eb.Code, eb.Message
		}
		return se
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

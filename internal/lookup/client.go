package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// maxResponseSize caps the body read from the lookup service
const maxResponseSize = 1 << 20

// Error reports a failed lookup: transport failure, non-2xx status,
// malformed JSON, or a body without a status
type Error struct {
	Symbol     string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("looking up %s (status %d): %v", e.Symbol, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("looking up %s: %v", e.Symbol, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Client calls GET {baseURL}/scan/{symbol}
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a new lookup Client. A zero timeout leaves the
// caller's context as the only bound.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8000"
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Lookup fetches product details for symbol
func (c *Client) Lookup(ctx context.Context, symbol string) (*Product, error) {
	if strings.TrimSpace(symbol) == "" {
		return nil, &Error{Symbol: symbol, Err: errors.New("empty symbol")}
	}

	endpoint := fmt.Sprintf("%s/scan/%s", c.baseURL, url.PathEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &Error{Symbol: symbol, Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &Error{Symbol: symbol, Err: fmt.Errorf("calling lookup service: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &Error{Symbol: symbol, StatusCode: resp.StatusCode, Err: fmt.Errorf("reading response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{Symbol: symbol, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected response: %s", strings.TrimSpace(string(body)))}
	}

	var product Product
	if err := json.Unmarshal(body, &product); err != nil {
		return nil, &Error{Symbol: symbol, StatusCode: resp.StatusCode, Err: fmt.Errorf("decoding response: %w", err)}
	}
	if product.Status == "" {
		return nil, &Error{Symbol: symbol, StatusCode: resp.StatusCode, Err: errNoStatus}
	}

	return &product, nil
}

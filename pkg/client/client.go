package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	tm "github.com/jmerrifield20/threatlens/pkg/threatmodel"
)

const maxResponseBody = 8 << 20

// ErrNotFound matches any 404 response via errors.Is.
var ErrNotFound = errors.New("not found")

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("threatlens: HTTP %d: %s", e.StatusCode, e.Message)
}

// Is lets errors.Is(err, ErrNotFound) match 404s.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// PatternSummary is the public view of a catalog pattern.
type PatternSummary struct {
	ID                   string             `json:"id"`
	Name                 string             `json:"name"`
	Description          string             `json:"description"`
	Category             tm.Category        `json:"category"`
	ApplicableComponents []tm.ComponentType `json:"applicableComponents"`
	Confidence           float64            `json:"confidence"`
	LastUpdated          time.Time          `json:"lastUpdated"`
}

// LedgerOverview is the audit ledger length and head hash.
type LedgerOverview struct {
	Entries int    `json:"entries"`
	Head    string `json:"head"`
}

// LedgerVerification is the result of a ledger integrity check.
type LedgerVerification struct {
	Valid    bool   `json:"valid"`
	BrokenAt int    `json:"brokenAt,omitempty"`
	Error    string `json:"error,omitempty"`
}

// DreadResult is the response of ScoreDread.
type DreadResult struct {
	Dread     tm.DreadScore       `json:"dread"`
	RiskLevel tm.Severity         `json:"riskLevel"`
	Threat    tm.IdentifiedThreat `json:"threat"`
}

// Client talks to a threatd HTTP server.
type Client struct {
	base       string
	httpClient *http.Client
	token      string
	userAgent  string
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return errors.New("nil http client")
		}
		c.httpClient = hc
		return nil
	}
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		c.httpClient.Timeout = d
		return nil
	}
}

// WithBearerToken attaches token to every request.
func WithBearerToken(token string) Option {
	return func(c *Client) error {
		c.token = token
		return nil
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) error {
		c.userAgent = ua
		return nil
	}
}

// WithInsecureSkipVerify disables TLS certificate verification.
// Only use this in development against self-signed certificates.
func WithInsecureSkipVerify() Option {
	return func(c *Client) error {
		c.httpClient = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
			},
			Timeout: c.httpClient.Timeout,
		}
		return nil
	}
}

// New creates a Client for the server at base, e.g. "http://localhost:8080".
func New(base string, opts ...Option) (*Client, error) {
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q", base)
	}
	c := &Client{
		base:       strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		userAgent:  "threatlens-go",
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error. Useful in tests and program init.
func MustNew(base string, opts ...Option) *Client {
	c, err := New(base, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Analyze submits a threat model for analysis.
func (c *Client) Analyze(ctx context.Context, req *tm.Request) (*tm.Response, error) {
	var resp tm.Response
	if err := c.call(ctx, http.MethodPost, "/api/v1/analyses", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Methodologies lists the methodologies the server can analyze.
func (c *Client) Methodologies(ctx context.Context) ([]tm.Methodology, error) {
	var body struct {
		Methodologies []tm.Methodology `json:"methodologies"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/methodologies", nil, &body); err != nil {
		return nil, err
	}
	return body.Methodologies, nil
}

// ScoreDread rescores a single threat against components.
func (c *Client) ScoreDread(ctx context.Context, t tm.IdentifiedThreat, components []tm.Component) (*DreadResult, error) {
	in := struct {
		Threat     tm.IdentifiedThreat `json:"threat"`
		Components []tm.Component      `json:"components"`
	}{t, components}
	var out DreadResult
	if err := c.call(ctx, http.MethodPost, "/api/v1/dread", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListPatterns returns the catalog, optionally filtered by category and
// component type. Empty filters match everything.
func (c *Client) ListPatterns(ctx context.Context, category tm.Category, ctype tm.ComponentType) ([]PatternSummary, error) {
	q := url.Values{}
	if category != "" {
		q.Set("category", string(category))
	}
	if ctype != "" {
		q.Set("componentType", string(ctype))
	}
	path := "/api/v1/patterns"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var body struct {
		Patterns []PatternSummary `json:"patterns"`
	}
	if err := c.call(ctx, http.MethodGet, path, nil, &body); err != nil {
		return nil, err
	}
	return body.Patterns, nil
}

// GetPattern returns the raw JSON of one pattern.
func (c *Client) GetPattern(ctx context.Context, id string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.call(ctx, http.MethodGet, "/api/v1/patterns/"+url.PathEscape(id), nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// AddPattern adds a pattern given as its JSON document. Requires an admin
// token when the server has auth enabled.
func (c *Client) AddPattern(ctx context.Context, pattern json.RawMessage) error {
	return c.call(ctx, http.MethodPost, "/api/v1/patterns", pattern, nil)
}

// RemovePattern deletes a pattern. Requires an admin token when the server
// has auth enabled.
func (c *Client) RemovePattern(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, "/api/v1/patterns/"+url.PathEscape(id), nil, nil)
}

// Ledger returns the audit ledger overview.
func (c *Client) Ledger(ctx context.Context) (*LedgerOverview, error) {
	var out LedgerOverview
	if err := c.call(ctx, http.MethodGet, "/api/v1/ledger", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyLedger asks the server to check the audit chain.
func (c *Client) VerifyLedger(ctx context.Context) (*LedgerVerification, error) {
	var out LedgerVerification
	if err := c.call(ctx, http.MethodGet, "/api/v1/ledger/verify", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// call sends in as JSON (when non-nil) and decodes the response into out
// (when non-nil).
func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return apiError(resp.StatusCode, data)
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func apiError(code int, body []byte) error {
	var payload struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		msg = payload.Error
	}
	if msg == "" {
		msg = http.StatusText(code)
	}
	return &APIError{StatusCode: code, Message: msg}
}


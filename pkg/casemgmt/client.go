// Package casemgmt pushes finished submission packages to the downstream
// case-management system.
package casemgmt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/submission-intake/internal/model"
)

// Client defines the case-management ingestion operation.
type Client interface {
	Push(ctx context.Context, pkg Package) (*Response, error)
}

// Package is the ingestion payload. TxID is omitted on reruns.
type Package struct {
	CaseID     string               `json:"case_id"`
	TxID       string               `json:"tx_id,omitempty"`
	ParsedData model.Value          `json:"parsed_data"`
	Insights   model.AgentResponses `json:"insights"`
}

// Response is the ingestion endpoint's reply.
type Response struct {
	StatusCode int         `json:"status_code"`
	Body       model.Value `json:"response"`
}

// APIError is returned when the endpoint responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("casemgmt: HTTP %d: %s", e.StatusCode, e.Body)
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithBasicAuth authenticates every push with HTTP basic credentials.
func WithBasicAuth(user, password string) Option {
	return func(c *httpClient) {
		c.user = user
		c.password = password
	}
}

type httpClient struct {
	endpoint string
	user     string
	password string
	http     *http.Client
}

// NewClient creates a client posting to the ingestion endpoint URL.
func NewClient(endpoint string, opts ...Option) Client {
	c := &httpClient{
		endpoint: endpoint,
		http:     &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Push(ctx context.Context, pkg Package) (*Response, error) {
	if pkg.Insights == nil {
		pkg.Insights = model.AgentResponses{}
	}
	buf, err := json.Marshal(pkg)
	if err != nil {
		return nil, eris.Wrap(err, "casemgmt: marshal package")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(buf))
	if err != nil {
		return nil, eris.Wrap(err, "casemgmt: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.user != "" {
		req.SetBasicAuth(c.user, c.password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "casemgmt: push case %s", pkg.CaseID)
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "casemgmt: read response body")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	out := &Response{StatusCode: resp.StatusCode}
	if len(bytes.TrimSpace(data)) == 0 {
		return out, nil
	}
	body, err := model.Parse(data)
	if err != nil {
		// Non-JSON acknowledgements are kept as text.
		body = model.String(string(data))
	}
	out.Body = body
	return out, nil
}

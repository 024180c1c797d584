// Package docintel is a client for the document-intelligence API that
// extracts facts from uploaded insurance submissions.
package docintel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/submission-intake/internal/model"
	"github.com/sells-group/submission-intake/internal/resilience"
)

// Client defines the document-intelligence operations used by the intake
// pipeline.
type Client interface {
	Authenticate(ctx context.Context) (string, error)
	GetUploadURL(ctx context.Context, token, filename string) (*UploadTarget, error)
	Upload(ctx context.Context, uploadURL string, body []byte, contentType string) error
	TriggerProcessing(ctx context.Context, token, txID string) error
	// SubmissionStatus returns the raw status document for txID.
	SubmissionStatus(ctx context.Context, token, txID string) ([]byte, error)
	// FetchPackage returns one data package's raw JSON for txID.
	FetchPackage(ctx context.Context, token, dataPackageID, txID string) (model.Value, error)
}

// Credentials identify the pipeline to the API.
type Credentials struct {
	ClientID     string
	ClientSecret string
	APIKey       string
}

// UploadTarget is the response from POST /submissions/upload-url.
type UploadTarget struct {
	UploadURL string `json:"upload_url"`
	TxID      string `json:"tx_id"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// APIError is returned when the API responds with a non-2xx status.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("docintel: %s: HTTP %d: %s", e.Op, e.StatusCode, e.Body)
}

// Transient reports whether the request may succeed if repeated.
func (e *APIError) Transient() bool {
	return resilience.IsTransientHTTPStatus(e.StatusCode)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithBaseURL overrides the submissions API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithAuthURL overrides the token endpoint.
func WithAuthURL(u string) Option {
	return func(c *httpClient) { c.authURL = u }
}

// WithDataURL overrides the data package API base URL.
func WithDataURL(u string) Option {
	return func(c *httpClient) { c.dataURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithRateLimit throttles API calls to rps requests per second. Zero
// disables throttling.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			c.limiter = nil
		}
	}
}

// WithRetry sets the retry policy for idempotent reads.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) { c.retry = cfg }
}

type httpClient struct {
	creds   Credentials
	baseURL string
	authURL string
	dataURL string
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewClient creates a document-intelligence client.
func NewClient(creds Credentials, opts ...Option) Client {
	c := &httpClient{
		creds: creds,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(5, 5),
		retry:   resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = resilience.RetryLogger("docintel", "fetch")
	}
	return c
}

func (c *httpClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return eris.Wrap(c.limiter.Wait(ctx), "docintel: rate limit")
}

func (c *httpClient) Authenticate(ctx context.Context) (string, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.creds.ClientID},
		"client_secret": {c.creds.ClientSecret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", eris.Wrap(err, "docintel: create auth request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var resp tokenResponse
	if err := c.do(req, "authenticate", &resp); err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", eris.New("docintel: authenticate: empty access token")
	}
	return resp.AccessToken, nil
}

func (c *httpClient) GetUploadURL(ctx context.Context, token, filename string) (*UploadTarget, error) {
	var resp UploadTarget
	body := map[string]string{"filename": filename}
	if err := c.postJSON(ctx, token, c.baseURL+"/submissions/upload-url", "get upload url", body, &resp); err != nil {
		return nil, err
	}
	if resp.UploadURL == "" || resp.TxID == "" {
		return nil, eris.Errorf("docintel: get upload url: incomplete response %+v", resp)
	}
	return &resp, nil
}

// Upload sends the document to the pre-signed URL. The URL carries its own
// authorization, so no bearer token is attached.
func (c *httpClient) Upload(ctx context.Context, uploadURL string, body []byte, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "docintel: create upload request")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	return c.do(req, "upload", nil)
}

func (c *httpClient) TriggerProcessing(ctx context.Context, token, txID string) error {
	path := fmt.Sprintf("%s/submissions/%s/process", c.baseURL, url.PathEscape(txID))
	return c.postJSON(ctx, token, path, "trigger processing", struct{}{}, nil)
}

func (c *httpClient) SubmissionStatus(ctx context.Context, token, txID string) ([]byte, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	path := fmt.Sprintf("%s/submissions/%s/status", c.baseURL, url.PathEscape(txID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, eris.Wrap(err, "docintel: create status request")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	var raw json.RawMessage
	if err := c.do(req, "submission status", &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// FetchPackage is idempotent and retried on transient failures.
func (c *httpClient) FetchPackage(ctx context.Context, token, dataPackageID, txID string) (model.Value, error) {
	path := fmt.Sprintf("%s/data/v5/%s/%s", c.dataURL, url.PathEscape(dataPackageID), url.PathEscape(txID))
	op := "fetch " + dataPackageID

	return resilience.DoVal(ctx, c.retry, func(ctx context.Context) (model.Value, error) {
		if err := c.wait(ctx); err != nil {
			return model.Value{}, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
		if err != nil {
			return model.Value{}, eris.Wrap(err, "docintel: create fetch request")
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("x-api-key", c.creds.APIKey)

		var v model.Value
		if err := c.do(req, op, &v); err != nil {
			return model.Value{}, err
		}
		return v, nil
	})
}

func (c *httpClient) postJSON(ctx context.Context, token, target, op string, body, out any) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return eris.Wrapf(err, "docintel: %s: marshal request", op)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(buf))
	if err != nil {
		return eris.Wrapf(err, "docintel: %s: create request", op)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	return c.do(req, op, out)
}

func (c *httpClient) do(req *http.Request, op string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrapf(err, "docintel: %s: execute request", op)
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrapf(err, "docintel: %s: read response body", op)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Op: op, StatusCode: resp.StatusCode, Body: string(data)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return eris.Wrapf(err, "docintel: %s: decode response", op)
	}
	return nil
}

// Package agentsvc is a client for the insight-agent service's query API.
package agentsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/submission-intake/internal/model"
)

// DefaultTimeout bounds a single agent query.
const DefaultTimeout = 300 * time.Second

// Client defines the agent service operations.
type Client interface {
	Query(ctx context.Context, req QueryRequest) (model.Value, error)
}

// QueryRequest is the body for POST /query.
type QueryRequest struct {
	AgentConfig AgentConfig `json:"agent_config"`
	Message     string      `json:"message"`
	ThreadID    int         `json:"thread_id"`
}

// AgentConfig is the agent definition sent with every query.
type AgentConfig struct {
	AgentID               string        `json:"AgentID"`
	AgentName             string        `json:"AgentName"`
	AgentDesc             string        `json:"AgentDesc"`
	CreatedOn             string        `json:"CreatedOn"`
	Configuration         Configuration `json:"Configuration"`
	IsManagerAgent        bool          `json:"isManagerAgent"`
	SelectedManagerAgents model.Value   `json:"selectedManagerAgents"`
	ManagerAgentIntention string        `json:"managerAgentIntention"`
	SelectedKnowledgeBase model.Value   `json:"selectedKnowledgeBase"`
	KnowledgeBase         KnowledgeBase `json:"knowledge_base"`
	CoreFeatures          model.Value   `json:"coreFeatures"`
	LLMProvider           string        `json:"llmProvider"`
	LLMModel              string        `json:"llmModel"`
}

// Configuration is the prompt and tooling block of an AgentConfig.
type Configuration struct {
	Name                string        `json:"name"`
	FunctionDescription string        `json:"function_description"`
	SystemMessage       string        `json:"system_message"`
	Tools               model.Value   `json:"tools"`
	Category            string        `json:"category"`
	StructuredOutput    model.Value   `json:"structured_output"`
	KnowledgeBase       KnowledgeBase `json:"knowledge_base"`
}

// KnowledgeBase is the retrieval settings for an agent. The zero value
// encodes as {}.
type KnowledgeBase struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Enabled        string `json:"enabled"`
	CollectionName string `json:"collection_name"`
	EmbeddingModel string `json:"embedding_model"`
	Description    string `json:"description"`
	NumberOfChunks int    `json:"number_of_chunks"`
}

// MarshalJSON implements json.Marshaler.
func (kb KnowledgeBase) MarshalJSON() ([]byte, error) {
	if kb == (KnowledgeBase{}) {
		return []byte("{}"), nil
	}
	type plain KnowledgeBase
	return json.Marshal(plain(kb))
}

// APIError is returned when the agent service responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("agentsvc: HTTP %d: %s", e.StatusCode, e.Body)
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithTimeout overrides the per-query timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

type httpClient struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
}

// NewClient creates an agent service client rooted at baseURL.
func NewClient(baseURL string, opts ...Option) Client {
	c := &httpClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: DefaultTimeout,
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Query sends one message to an agent and returns its decoded reply. Each
// call is bounded by the client timeout regardless of ctx.
func (c *httpClient) Query(ctx context.Context, req QueryRequest) (model.Value, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	buf, err := json.Marshal(req)
	if err != nil {
		return model.Value{}, eris.Wrap(err, "agentsvc: marshal request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/query", bytes.NewReader(buf))
	if err != nil {
		return model.Value{}, eris.Wrap(err, "agentsvc: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return model.Value{}, eris.Wrapf(err, "agentsvc: query %s", req.AgentConfig.AgentID)
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.Value{}, eris.Wrap(err, "agentsvc: read response body")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return model.Value{}, &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	v, err := model.Parse(data)
	if err != nil {
		return model.Value{}, eris.Wrapf(err, "agentsvc: decode reply from %s", req.AgentConfig.AgentID)
	}
	return v, nil
}

package docintel

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/submission-intake/internal/resilience"
)

var testCreds = Credentials{ClientID: "cid", ClientSecret: "secret", APIKey: "key-123"}

func newTestServer(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(testCreds,
		WithBaseURL(srv.URL),
		WithAuthURL(srv.URL+"/oauth/token"),
		WithDataURL(srv.URL),
		WithRateLimit(0),
		WithRetry(resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}),
	)
}

func TestAuthenticate(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/oauth/token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "cid", r.PostForm.Get("client_id"))
		assert.Equal(t, "secret", r.PostForm.Get("client_secret"))
		_ = json.NewEncoder(w).Encode(tokenResponse{AccessToken: "tok", ExpiresIn: 3600})
	})

	token, err := c.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok", token)
}

func TestAuthenticate_Errors(t *testing.T) {
	t.Run("unauthorized", func(t *testing.T) {
		c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
		})
		_, err := c.Authenticate(context.Background())
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
		assert.Equal(t, "authenticate", apiErr.Op)
		assert.False(t, apiErr.Transient())
	})

	t.Run("empty token", func(t *testing.T) {
		c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"access_token":""}`))
		})
		_, err := c.Authenticate(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty access token")
	})
}

func TestGetUploadURL(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/submissions/upload-url", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "acord.pdf", body["filename"])
		_ = json.NewEncoder(w).Encode(UploadTarget{UploadURL: "https://bucket/put", TxID: "tx-1"})
	})

	target, err := c.GetUploadURL(context.Background(), "tok", "acord.pdf")
	require.NoError(t, err)
	assert.Equal(t, "tx-1", target.TxID)
	assert.Equal(t, "https://bucket/put", target.UploadURL)
}

func TestGetUploadURL_Incomplete(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"upload_url":"https://bucket/put"}`))
	})
	_, err := c.GetUploadURL(context.Background(), "tok", "acord.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "incomplete response")
}

func TestUpload(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.Equal(t, "application/pdf", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "%PDF-1.7", string(body))
		w.WriteHeader(http.StatusOK)
	})
	// The test server doubles as the pre-signed bucket URL.
	hc := c.(*httpClient)
	require.NoError(t, c.Upload(context.Background(), hc.baseURL+"/bucket/object", []byte("%PDF-1.7"), "application/pdf"))
}

func TestTriggerProcessing(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/submissions/tx-1/process", r.URL.Path)
		w.WriteHeader(http.StatusAccepted)
	})
	require.NoError(t, c.TriggerProcessing(context.Background(), "tok", "tx-1"))
}

func TestSubmissionStatus(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/submissions/tx-1/status", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"PROCESSING","progress":40}`))
	})
	raw, err := c.SubmissionStatus(context.Background(), "tok", "tx-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"PROCESSING","progress":40}`, string(raw))
}

func TestSubmissionStatus_NotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := c.SubmissionStatus(context.Background(), "tok", "tx-1")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchPackage(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/v5/elevate-us-common-c0001/tx-1", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "key-123", r.Header.Get("x-api-key"))
		_, _ = w.Write([]byte(`{"data":{"facts":{"premium":1.50}},"scores":{}}`))
	})
	v, err := c.FetchPackage(context.Background(), "tok", "elevate-us-common-c0001", "tx-1")
	require.NoError(t, err)
	premium, ok := v.Lookup("data", "facts", "premium")
	require.True(t, ok)
	assert.Equal(t, "1.50", premium.Text(), "numbers keep their original text")
}

func TestFetchPackage_RetriesTransient(t *testing.T) {
	var calls atomic.Int32
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"data":{}}`))
	})
	_, err := c.FetchPackage(context.Background(), "tok", "elevate-us-gl-c0001", "tx-1")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchPackage_NotFound(t *testing.T) {
	var calls atomic.Int32
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	})
	_, err := c.FetchPackage(context.Background(), "tok", "elevate-us-gl-c0001", "tx-1")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Equal(t, int32(1), calls.Load(), "client errors are not retried")
}

func TestIsNotFound(t *testing.T) {
	assert.False(t, IsNotFound(nil))
	assert.False(t, IsNotFound(&APIError{StatusCode: 500}))
	assert.True(t, IsNotFound(&APIError{StatusCode: 404}))
}

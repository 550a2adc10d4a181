// Package testutil provides helpers for handler and integration tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Envelope is the authority's response wrapper.
type Envelope struct {
	Success bool              `json:"success"`
	Data    json.RawMessage   `json:"data,omitempty"`
	Error   string            `json:"error,omitempty"`
	Message string            `json:"message,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// NewJSONRequest creates a request with body marshalled as JSON.
func NewJSONRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		require.NoError(t, err, "failed to marshal request body")
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req := httptest.NewRequest(method, path, bodyReader)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// NewRequestWithBody creates a request with a raw string body.
func NewRequestWithBody(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// DoRequest executes a request against a handler and returns the recorder.
func DoRequest(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

// DecodeEnvelope parses the response wrapper.
func DecodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), "failed to unmarshal envelope: %s", rr.Body.String())
	return env
}

// DecodeData asserts a successful envelope and unmarshals its data into T.
func DecodeData[T any](t *testing.T, rr *httptest.ResponseRecorder) *T {
	t.Helper()
	env := DecodeEnvelope(t, rr)
	require.True(t, env.Success, "expected success envelope, got error %q: %s", env.Error, env.Message)
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out), "failed to unmarshal data")
	return &out
}

// AssertError asserts the status code and the envelope's error string.
func AssertError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) Envelope {
	t.Helper()
	assert.Equal(t, status, rr.Code, "unexpected status code: %s", rr.Body.String())
	env := DecodeEnvelope(t, rr)
	assert.False(t, env.Success)
	assert.Equal(t, code, env.Error, "unexpected error code")
	return env
}

// Package gateway implements the REST client for the SQL gateway.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/streamsql/workbench/pkg/errors"
	"github.com/streamsql/workbench/pkg/models"
)

// DefaultRequestTimeout bounds a single gateway HTTP request.
const DefaultRequestTimeout = 30 * time.Second

// Client is a thin wrapper around the gateway's REST surface. All transport
// and HTTP failures are translated into coded errors: network-level failures
// become CodeTransport, non-2xx responses are classified from their body.
type Client struct {
	mu         sync.RWMutex
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a gateway client for the given base URL.
func NewClient(baseURL string, logger zerolog.Logger) *Client {
	return &Client{
		baseURL:    trimSlash(baseURL),
		httpClient: &http.Client{Timeout: DefaultRequestTimeout},
		logger:     logger.With().Str("component", "gateway").Logger(),
	}
}

// SetBaseURL re-points the client at a new gateway, e.g. after the active
// session moved to a different connection.
func (c *Client) SetBaseURL(baseURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseURL = trimSlash(baseURL)
}

// BaseURL returns the gateway base URL currently in use.
func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

// Do issues one request against the gateway. endpoint is the path below the
// base URL, body (if non-nil) is JSON-encoded, and a 2xx response body is
// decoded into out (if non-nil).
func (c *Client) Do(ctx context.Context, method, endpoint string, body, out interface{}) error {
	url := c.BaseURL() + endpoint

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, errors.CodeInvalidRequest, "encode request body")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return errors.Wrap(err, errors.CodeInvalidRequest, "build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return errors.Wrap(ctx.Err(), errors.CodeCanceled, "request canceled")
		}
		c.logger.Debug().Err(err).Str("method", method).Str("endpoint", endpoint).Msg("gateway request failed")
		return errors.Wrapf(err, errors.CodeTransport, "%s %s", method, endpoint)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, errors.CodeTransport, "read response of %s %s", method, endpoint)
	}

	c.logger.Debug().
		Str("method", method).
		Str("endpoint", endpoint).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("gateway request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.ClassifyResponse(resp.StatusCode, respBody)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return errors.Wrapf(err, errors.CodeGateway, "decode response of %s %s", method, endpoint)
		}
	}
	return nil
}

// openSessionRequest is the body of POST /sessions.
type openSessionRequest struct {
	SessionName string            `json:"sessionName,omitempty"`
	Properties  map[string]string `json:"properties,omitempty"`
}

// openSessionResponse is the response of POST /sessions.
type openSessionResponse struct {
	SessionHandle string `json:"sessionHandle"`
}

// OpenSession creates a new session and returns its opaque handle.
func (c *Client) OpenSession(ctx context.Context, name string, properties map[string]string) (string, error) {
	var resp openSessionResponse
	err := c.Do(ctx, http.MethodPost, "/sessions", openSessionRequest{SessionName: name, Properties: properties}, &resp)
	if err != nil {
		return "", err
	}
	if resp.SessionHandle == "" {
		return "", errors.New(errors.CodeGateway, "gateway returned an empty session handle")
	}
	c.logger.Info().Str("session", name).Str("handle", resp.SessionHandle).Msg("session opened")
	return resp.SessionHandle, nil
}

// SessionAlive checks whether a session handle is still valid on the gateway.
func (c *Client) SessionAlive(ctx context.Context, handle string) error {
	return c.Do(ctx, http.MethodGet, "/sessions/"+handle, nil, nil)
}

// CloseSession releases a session on the gateway.
func (c *Client) CloseSession(ctx context.Context, handle string) error {
	return c.Do(ctx, http.MethodDelete, "/sessions/"+handle, nil, nil)
}

// submitStatementRequest is the body of POST /sessions/{h}/statements.
type submitStatementRequest struct {
	Statement        string `json:"statement"`
	ExecutionTimeout int64  `json:"executionTimeout,omitempty"`
}

// submitStatementResponse is the response of POST /sessions/{h}/statements.
type submitStatementResponse struct {
	OperationHandle string `json:"operationHandle"`
}

// SubmitStatement submits one SQL statement to a session and returns the
// operation handle that identifies its execution and result stream.
func (c *Client) SubmitStatement(ctx context.Context, sessionHandle, statement string, executionTimeout time.Duration) (string, error) {
	req := submitStatementRequest{Statement: statement}
	if executionTimeout > 0 {
		req.ExecutionTimeout = executionTimeout.Milliseconds()
	}
	var resp submitStatementResponse
	err := c.Do(ctx, http.MethodPost, "/sessions/"+sessionHandle+"/statements", req, &resp)
	if err != nil {
		return "", err
	}
	if resp.OperationHandle == "" {
		return "", errors.New(errors.CodeGateway, "gateway returned an empty operation handle")
	}
	return resp.OperationHandle, nil
}

// FetchResults fetches one page of an operation's results by token.
func (c *Client) FetchResults(ctx context.Context, sessionHandle, operationHandle string, token int64) (*models.StatementResult, error) {
	endpoint := fmt.Sprintf("/sessions/%s/operations/%s/result/%d", sessionHandle, operationHandle, token)
	var result models.StatementResult
	if err := c.Do(ctx, http.MethodGet, endpoint, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CancelOperation asks the gateway to cancel a running operation.
func (c *Client) CancelOperation(ctx context.Context, sessionHandle, operationHandle string) error {
	return c.Do(ctx, http.MethodPost, "/sessions/"+sessionHandle+"/operations/"+operationHandle+"/cancel", nil, nil)
}

// CloseOperation releases an operation's resources on the gateway. The
// operation may already be gone, so callers typically ignore failures.
func (c *Client) CloseOperation(ctx context.Context, sessionHandle, operationHandle string) error {
	return c.Do(ctx, http.MethodDelete, "/sessions/"+sessionHandle+"/operations/"+operationHandle+"/close", nil, nil)
}

func trimSlash(url string) string {
	for len(url) > 0 && url[len(url)-1] == '/' {
		url = url[:len(url)-1]
	}
	return url
}

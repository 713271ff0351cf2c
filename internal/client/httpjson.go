package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tenxcards/tenxcards-go/internal/metrics"
	"github.com/tenxcards/tenxcards-go/internal/model"
)

const (
	userAgent       = "tenxcards-go"
	headerRequestID = "X-Request-ID"

	defaultAPIErrorMessage = "API request failed"
	defaultNetErrorMessage = "Network request failed"
	defaultTimeout         = 30 * time.Second
)

// ErrAborted is returned when the caller's context ends before the response
// is read. It is never an *APIError.
var ErrAborted = errors.New("request aborted")

// Request describes one call relative to the API base URL.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   any
}

// Doer is implemented by both the plain and the authenticated client.
type Doer interface {
	Do(ctx context.Context, req Request, out any) error
}

type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	metrics    *metrics.Registry
	log        *slog.Logger
}

type HTTPClientOption func(*HTTPClient)

func WithHTTPClient(hc *http.Client) HTTPClientOption {
	return func(c *HTTPClient) { c.httpClient = hc }
}

func WithMetrics(m *metrics.Registry) HTTPClientOption {
	return func(c *HTTPClient) { c.metrics = m }
}

func WithLogger(l *slog.Logger) HTTPClientOption {
	return func(c *HTTPClient) { c.log = l }
}

func WithTimeout(d time.Duration) HTTPClientOption {
	return func(c *HTTPClient) { c.httpClient = &http.Client{Timeout: d} }
}

func NewHTTPClient(baseURL string, opts ...HTTPClientOption) *HTTPClient {
	c := &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

// Do sends req and decodes a 2xx JSON body into out. A 204 leaves out
// untouched. Non-2xx statuses and transport failures come back as *APIError.
func (c *HTTPClient) Do(ctx context.Context, req Request, out any) error {
	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		return err
	}
	requestID := httpReq.Header.Get(headerRequestID)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %w", ErrAborted, ctxErr)
		}
		c.metrics.ObserveAPIRequest(req.Method, 0, time.Since(start))
		c.log.Debug("api request failed", "method", req.Method, "path", req.Path, "request_id", requestID, "error", err)
		return &APIError{StatusCode: 0, Message: transportMessage(err)}
	}
	defer resp.Body.Close()

	c.metrics.ObserveAPIRequest(req.Method, resp.StatusCode, time.Since(start))
	c.log.Debug("api request",
		"method", req.Method,
		"path", req.Path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
		"request_id", requestID,
	)

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	body, err := readBody(resp)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %w", ErrAborted, ctxErr)
		}
		return &APIError{StatusCode: 0, Message: transportMessage(err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(resp.StatusCode, body)
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &APIError{StatusCode: 0, Message: fmt.Sprintf("failed to parse response: %v", err)}
	}
	return nil
}

func (c *HTTPClient) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	target := c.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)
	httpReq.Header.Set(headerRequestID, uuid.NewString())
	for key, values := range req.Header {
		httpReq.Header.Del(key)
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	return httpReq, nil
}

// readBody returns the response as JSON. Non-JSON text is wrapped as
// {"message": text} and an empty text body becomes {}.
func readBody(resp *http.Response) ([]byte, error) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		return raw, nil
	}
	if len(raw) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(model.MessageResponse{Message: string(raw)})
}

func transportMessage(err error) string {
	if err == nil || err.Error() == "" {
		return defaultNetErrorMessage
	}
	return err.Error()
}

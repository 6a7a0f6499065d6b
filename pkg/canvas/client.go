package canvas

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

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
)

// DefaultTimeout bounds every Canvas request.
const DefaultTimeout = 30 * time.Second

// Credentials is supplied by the external auth collaborator.
type Credentials interface {
	BaseURL() string
	Token(ctx context.Context) (string, error)
}

// StaticCredentials serves a fixed base URL and bearer token.
type StaticCredentials struct {
	URL      string
	APIToken string
}

// BaseURL returns the configured Canvas instance URL.
func (s StaticCredentials) BaseURL() string {
	return s.URL
}

// Token returns the configured bearer token.
func (s StaticCredentials) Token(context.Context) (string, error) {
	if strings.TrimSpace(s.APIToken) == "" {
		return "", ErrMissingCredentials
	}
	return s.APIToken, nil
}

// Request describes a single Canvas call.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// Fetcher issues raw requests. Client is the production implementation.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) ([]byte, int, error)
}

// RequestHook observes completed requests.
type RequestHook func(method, path string, status int, err error, took time.Duration)

// Config customises the client.
type Config struct {
	Credentials Credentials
	Timeout     time.Duration
	HTTPClient  *http.Client
	Hook        RequestHook
}

// Client performs authenticated Canvas REST calls and maps failures onto the error taxonomy.
// It never retries.
type Client struct {
	credentials Credentials
	httpClient  *http.Client
	hook        RequestHook
	logger      zerolog.Logger
}

// NewClient constructs a Client.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		credentials: cfg.Credentials,
		httpClient:  httpClient,
		hook:        cfg.Hook,
		logger:      logger.With().Str("component", "canvas_client").Logger(),
	}
}

// Fetch executes req and returns the body and status code of a successful (2xx) response.
func (c *Client) Fetch(ctx context.Context, req Request) ([]byte, int, error) {
	start := time.Now()
	body, status, err := c.do(ctx, req)
	if c.hook != nil {
		c.hook(req.method(), req.Path, status, err, time.Since(start))
	}
	return body, status, err
}

func (c *Client) do(ctx context.Context, req Request) ([]byte, int, error) {
	if c.credentials == nil || strings.TrimSpace(c.credentials.BaseURL()) == "" {
		return nil, 0, newAPIError(ErrMissingCredentials, 0, req.Path, nil)
	}

	token, err := c.credentials.Token(ctx)
	if err != nil {
		return nil, 0, newAPIError(ErrMissingCredentials, 0, req.Path, err)
	}

	endpoint := buildURL(c.credentials.BaseURL(), req.Path, req.Query)

	var reader io.Reader
	if len(req.Body) > 0 {
		reader = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method(), endpoint, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	for key, values := range req.Header {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Accept", "application/json")
	if id := RequestIDFromContext(ctx); id != "" {
		httpReq.Header.Set(RequestIDHeader, id)
	}
	if len(req.Body) > 0 {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug().Str("method", httpReq.Method).Str("path", req.Path).Msg("canvas request")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, 0, err
		}
		return nil, 0, newAPIError(ErrNetworkUnavailable, 0, req.Path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, newAPIError(ErrNetworkUnavailable, resp.StatusCode, req.Path, err)
	}

	if kind := classifyStatus(resp.StatusCode); kind != nil {
		apiErr := newAPIError(kind, resp.StatusCode, req.Path, nil)
		apiErr.Message = parseErrorMessage(payload)
		return nil, resp.StatusCode, apiErr
	}

	if len(payload) > 0 && mimetype.Detect(payload).Is("text/html") {
		return nil, resp.StatusCode, newAPIError(ErrDecoding, resp.StatusCode, req.Path, errors.New("received html instead of json"))
	}

	return payload, resp.StatusCode, nil
}

func (r Request) method() string {
	if r.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(r.Method)
}

func classifyStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized:
		return ErrUnauthorized
	case status == http.StatusForbidden:
		return ErrForbidden
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	case status >= 500 && status < 600:
		return ErrServerError
	default:
		return ErrUnknownStatus
	}
}

func buildURL(base, path string, query url.Values) string {
	endpoint := strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		separator := "?"
		if strings.Contains(endpoint, "?") {
			separator = "&"
		}
		endpoint += separator + query.Encode()
	}
	return endpoint
}

// parseErrorMessage understands both {"message": "..."} and {"errors": [...]} payloads.
func parseErrorMessage(payload []byte) string {
	if len(payload) == 0 {
		return ""
	}

	var body struct {
		Message string          `json:"message"`
		Errors  json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}
	if body.Message != "" {
		return body.Message
	}

	var list []string
	if err := json.Unmarshal(body.Errors, &list); err == nil && len(list) > 0 {
		return list[0]
	}

	var detailed []struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body.Errors, &detailed); err == nil && len(detailed) > 0 {
		return detailed[0].Message
	}

	return ""
}

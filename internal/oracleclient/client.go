// Package oracleclient is an HTTP client for the risk oracle API.
package oracleclient

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

	"github.com/mbd888/riskoracle/internal/auth"
)

// ErrNoSigner is returned by mutating calls on a client without a key.
var ErrNoSigner = errors.New("oracle client has no signing key")

// APIError is an error response from the oracle.
type APIError struct {
	Status  int
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("oracle API error (%d %s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("oracle API error (%d %s)", e.Status, e.Code)
}

// IsUnauthorized reports whether err is the oracle rejecting a non-admin write.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusForbidden
}

// IsAlreadyInitialized reports whether err is a repeated initialize.
func IsAlreadyInitialized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict
}

// Risk is a single validator score.
type Risk struct {
	ValidatorID string     `json:"validator"`
	Score       uint8      `json:"score"`
	LastUpdate  *time.Time `json:"lastUpdate,omitempty"`
}

// RiskList is every recorded score plus the registry's last update.
type RiskList struct {
	Entries    []Risk     `json:"entries"`
	Count      int        `json:"count"`
	LastUpdate *time.Time `json:"lastUpdate"`
}

// Status describes the registry.
type Status struct {
	Admin       string     `json:"admin"`
	Initialized bool       `json:"initialized"`
	Count       int        `json:"count"`
	LastUpdate  *time.Time `json:"lastUpdate"`
}

// Client talks to a risk oracle server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	signer     *auth.Signer
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithSigner signs mutating requests with s.
func WithSigner(s *auth.Signer) Option {
	return func(c *Client) { c.signer = s }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// New creates a client for the oracle at baseURL, e.g. "http://localhost:8080".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Signer returns the client's signer, or nil.
func (c *Client) Signer() *auth.Signer {
	return c.signer
}

func (c *Client) do(ctx context.Context, method, path string, body any, signed bool, out any) error {
	var data []byte
	if body != nil {
		var err error
		data, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if signed {
		if c.signer == nil {
			return ErrNoSigner
		}
		if err := c.signer.SignRequest(req, data, c.now()); err != nil {
			return fmt.Errorf("sign request: %w", err)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(respBody, apiErr) != nil || apiErr.Code == "" {
			apiErr.Code = http.StatusText(resp.StatusCode)
			apiErr.Message = strings.TrimSpace(string(respBody))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// GetRisk returns the score of a validator, 0 if never scored.
func (c *Client) GetRisk(ctx context.Context, validatorID string) (*Risk, error) {
	var r Risk
	if err := c.do(ctx, http.MethodGet, "/v1/risk/"+url.PathEscape(validatorID), nil, false, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRisks returns every recorded score.
func (c *Client) ListRisks(ctx context.Context) (*RiskList, error) {
	var l RiskList
	if err := c.do(ctx, http.MethodGet, "/v1/risk", nil, false, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// Status returns the registry's admin and last update.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var s Status
	if err := c.do(ctx, http.MethodGet, "/v1/oracle", nil, false, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// UpdateRisk sets a validator's score. Only the registry admin may do so.
func (c *Client) UpdateRisk(ctx context.Context, validatorID string, score uint8) (*Risk, error) {
	var r Risk
	body := map[string]int{"score": int(score)}
	if err := c.do(ctx, http.MethodPut, "/v1/risk/"+url.PathEscape(validatorID), body, true, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Initialize makes the signer the registry admin if there is none yet.
func (c *Client) Initialize(ctx context.Context) (*Status, error) {
	var s Status
	if err := c.do(ctx, http.MethodPost, "/v1/oracle/initialize", nil, true, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

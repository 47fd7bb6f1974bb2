// Package edge provides the client for the edge provider's managed custom
// hostname API (Cloudflare for SaaS custom hostnames).
package edge

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

	"github.com/artpar/linkhost/internal/core/domain"
	"github.com/hashicorp/go-retryablehttp"
)

// DefaultBaseURL is the Cloudflare v4 API root.
const DefaultBaseURL = "https://api.cloudflare.com/client/v4"

// ErrorPrefix marks every provider error message.
const ErrorPrefix = "cloudflare:"

// ErrNotConfigured is returned when the zone id or API token is missing.
var ErrNotConfigured = errors.New(ErrorPrefix + " zone id and api token are required")

// ErrHostnameNotFound is returned by FindHostname when no hostname matches.
var ErrHostnameNotFound = errors.New(ErrorPrefix + " custom hostname not found")

// codeDuplicateHostname is Cloudflare's error code for a hostname that
// already exists in the zone.
const codeDuplicateHostname = 1406

// =============================================================================
// Client Interface
// =============================================================================

// Client creates and polls managed custom hostnames.
type Client interface {
	CreateHostname(ctx context.Context, hostname string) (*Hostname, error)
	GetHostname(ctx context.Context, id string) (*Hostname, error)
	// FindHostname looks a custom hostname up by name. It returns
	// ErrHostnameNotFound when the provider has no such hostname.
	FindHostname(ctx context.Context, hostname string) (*Hostname, error)
}

// Hostname is the provider's view of a custom hostname.
type Hostname struct {
	ID                 string   `json:"id"`
	Hostname           string   `json:"hostname"`
	Status             string   `json:"status"`
	SSL                SSL      `json:"ssl"`
	VerificationErrors []string `json:"verification_errors,omitempty"`
}

// SSL is the certificate state of a custom hostname.
type SSL struct {
	Status           string            `json:"status"`
	Method           string            `json:"method,omitempty"`
	Type             string            `json:"type,omitempty"`
	ValidationErrors []ValidationError `json:"validation_errors,omitempty"`
}

// ValidationError is a TLS-level validation error.
type ValidationError struct {
	Message string `json:"message"`
}

// EdgeState converts h into the input of the refresh decision rule.
// Hostname-level errors come before TLS-level errors.
func (h *Hostname) EdgeState() domain.EdgeState {
	errs := make([]string, 0, len(h.VerificationErrors)+len(h.SSL.ValidationErrors))
	errs = append(errs, h.VerificationErrors...)
	for _, v := range h.SSL.ValidationErrors {
		errs = append(errs, v.Message)
	}
	return domain.EdgeState{
		HostnameStatus: h.Status,
		SSLStatus:      h.SSL.Status,
		Errors:         errs,
	}
}

// =============================================================================
// Errors
// =============================================================================

// ProviderError is a failed call to the provider API.
type ProviderError struct {
	StatusCode int
	Code       int // first provider error code, if any
	Body       string
	Message    string
}

func (e *ProviderError) Error() string {
	return ErrorPrefix + " " + e.Message
}

// IsProviderError reports whether err came from the provider, either as a
// *ProviderError or as an error whose message carries the provider prefix.
func IsProviderError(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return true
	}
	return err != nil && strings.HasPrefix(err.Error(), ErrorPrefix)
}

// IsDuplicate reports whether err is the provider rejecting a hostname that
// already exists.
func IsDuplicate(err error) bool {
	var pe *ProviderError
	if !errors.As(err, &pe) {
		return false
	}
	if pe.Code == codeDuplicateHostname || pe.StatusCode == http.StatusConflict {
		return true
	}
	return strings.Contains(strings.ToLower(pe.Message), "duplicate custom hostname")
}

// =============================================================================
// Cloudflare Client Implementation
// =============================================================================

// Config holds configuration for the Cloudflare client.
type Config struct {
	BaseURL       string
	ZoneID        string
	APIToken      string
	Timeout       time.Duration
	RetryAttempts int
	Logger        *slog.Logger
}

// DefaultConfig returns default client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:       DefaultBaseURL,
		Timeout:       10 * time.Second,
		RetryAttempts: 2,
	}
}

// CloudflareClient implements Client against the Cloudflare API.
type CloudflareClient struct {
	baseURL  string
	zoneID   string
	apiToken string
	client   *retryablehttp.Client
}

// NewCloudflareClient creates a new Cloudflare custom hostname client.
func NewCloudflareClient(cfg Config) *CloudflareClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryAttempts < 0 {
		cfg.RetryAttempts = 0
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client := retryablehttp.NewClient()
	client.HTTPClient.Timeout = cfg.Timeout
	client.RetryMax = cfg.RetryAttempts
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client.Logger = logger.With("component", "cloudflare")

	return &CloudflareClient{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		zoneID:   cfg.ZoneID,
		apiToken: cfg.APIToken,
		client:   client,
	}
}

// Configured reports whether credentials are present.
func (c *CloudflareClient) Configured() bool {
	return c.zoneID != "" && c.apiToken != ""
}

// createRequest is the body of a custom hostname creation.
type createRequest struct {
	Hostname string    `json:"hostname"`
	SSL      createSSL `json:"ssl"`
}

type createSSL struct {
	Method string `json:"method"`
	Type   string `json:"type"`
}

// envelope is the standard Cloudflare v4 response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Errors  []envelopeError `json:"errors"`
	Result  json.RawMessage `json:"result"`
}

type envelopeError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// CreateHostname creates a custom hostname with DV certificate validation via TXT.
func (c *CloudflareClient) CreateHostname(ctx context.Context, hostname string) (*Hostname, error) {
	body, err := json.Marshal(createRequest{
		Hostname: hostname,
		SSL:      createSSL{Method: "txt", Type: "dv"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.do(ctx, http.MethodPost, c.hostnamesURL(), body)
}

// GetHostname fetches a custom hostname by provider id.
func (c *CloudflareClient) GetHostname(ctx context.Context, id string) (*Hostname, error) {
	return c.do(ctx, http.MethodGet, c.hostnamesURL()+"/"+url.PathEscape(id), nil)
}

// FindHostname lists custom hostnames filtered by exact name.
func (c *CloudflareClient) FindHostname(ctx context.Context, hostname string) (*Hostname, error) {
	params := url.Values{}
	params.Set("hostname", hostname)
	result, err := c.send(ctx, http.MethodGet, c.hostnamesURL()+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var hosts []Hostname
	if err := json.Unmarshal(result.raw, &hosts); err != nil {
		return nil, &ProviderError{StatusCode: result.status, Body: result.body, Message: "invalid result"}
	}
	for i := range hosts {
		if strings.EqualFold(hosts[i].Hostname, hostname) {
			return &hosts[i], nil
		}
	}
	return nil, ErrHostnameNotFound
}

func (c *CloudflareClient) hostnamesURL() string {
	return c.baseURL + "/zones/" + url.PathEscape(c.zoneID) + "/custom_hostnames"
}

func (c *CloudflareClient) do(ctx context.Context, method, endpoint string, body []byte) (*Hostname, error) {
	result, err := c.send(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	var h Hostname
	if err := json.Unmarshal(result.raw, &h); err != nil {
		return nil, &ProviderError{StatusCode: result.status, Body: result.body, Message: "invalid result"}
	}
	return &h, nil
}

// apiResult is the unwrapped result of a successful call.
type apiResult struct {
	status int
	body   string
	raw    json.RawMessage
}

// send performs one API call and unwraps the v4 envelope.
func (c *CloudflareClient) send(ctx context.Context, method, endpoint string, body []byte) (*apiResult, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	var reqBody any
	if body != nil {
		reqBody = bytes.NewReader(body)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &ProviderError{Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("read response: %v", err)}
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || (decodeErr == nil && !env.Success) {
		return nil, &ProviderError{
			StatusCode: resp.StatusCode,
			Code:       envelopeCode(env),
			Body:       string(raw),
			Message:    envelopeMessage(env, resp.StatusCode),
		}
	}
	if decodeErr != nil {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Body: string(raw), Message: "invalid response body"}
	}
	return &apiResult{status: resp.StatusCode, body: string(raw), raw: env.Result}, nil
}

func envelopeCode(env envelope) int {
	for _, e := range env.Errors {
		if e.Code != 0 {
			return e.Code
		}
	}
	return 0
}

// envelopeMessage returns the first reported error or the HTTP status text.
func envelopeMessage(env envelope, status int) string {
	for _, e := range env.Errors {
		if e.Message != "" {
			return e.Message
		}
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return fmt.Sprintf("status %d", status)
}

// Package dns provides DNS resolution for domain verification.
// This is part of the Imperative Shell - handles I/O (DNS-over-HTTPS lookups).
package dns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	coredns "github.com/artpar/linkhost/internal/core/dns"
	"github.com/artpar/linkhost/internal/core/domain"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/miekg/dns"
)

// ErrLookupFailed is returned when the resolver cannot answer a query.
var ErrLookupFailed = errors.New("dns lookup failed")

// DefaultResolverURL is Cloudflare's public JSON DoH endpoint.
const DefaultResolverURL = "https://cloudflare-dns.com/dns-query"

// Config holds configuration for the DoH resolver.
type Config struct {
	URL           string
	Timeout       time.Duration
	RetryAttempts int
	Logger        *slog.Logger
}

// DefaultConfig returns default resolver configuration.
func DefaultConfig() Config {
	return Config{
		URL:           DefaultResolverURL,
		Timeout:       5 * time.Second,
		RetryAttempts: 2,
	}
}

// Resolver performs DNS lookups over HTTPS using the JSON wire format.
type Resolver struct {
	url    string
	client *retryablehttp.Client
	logger *slog.Logger
}

// NewResolver creates a new DoH resolver.
func NewResolver(cfg Config) *Resolver {
	if cfg.URL == "" {
		cfg.URL = DefaultResolverURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.RetryAttempts < 0 {
		cfg.RetryAttempts = 0
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "dns_resolver")

	client := retryablehttp.NewClient()
	client.HTTPClient.Timeout = cfg.Timeout
	client.RetryMax = cfg.RetryAttempts
	client.RetryWaitMin = 100 * time.Millisecond
	client.RetryWaitMax = time.Second
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client.Logger = logger

	return &Resolver{
		url:    cfg.URL,
		client: client,
		logger: logger,
	}
}

// dohResponse is the application/dns-json response body.
type dohResponse struct {
	Status int         `json:"Status"`
	Answer []dohAnswer `json:"Answer"`
}

type dohAnswer struct {
	Name string `json:"name"`
	Type uint16 `json:"type"`
	TTL  int    `json:"TTL"`
	Data string `json:"data"`
}

// Query returns the data of all answers of type qtype for name.
// NXDOMAIN yields no answers and no error.
func (r *Resolver) Query(ctx context.Context, name string, qtype uint16) ([]string, error) {
	typeName, ok := dns.TypeToString[qtype]
	if !ok {
		return nil, fmt.Errorf("%w: unknown record type %d", ErrLookupFailed, qtype)
	}

	params := url.Values{}
	params.Set("name", name)
	params.Set("type", typeName)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, r.url+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/dns-json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrLookupFailed, typeName, name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrLookupFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s %s: resolver returned status %d", ErrLookupFailed, typeName, name, resp.StatusCode)
	}

	var parsed dohResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrLookupFailed, err)
	}

	switch parsed.Status {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		return []string{}, nil
	default:
		return nil, fmt.Errorf("%w: %s %s: %s", ErrLookupFailed, typeName, name, rcodeName(parsed.Status))
	}

	answers := make([]string, 0, len(parsed.Answer))
	for _, a := range parsed.Answer {
		if a.Type == qtype {
			answers = append(answers, a.Data)
		}
	}
	return answers, nil
}

// Resolve looks up the CNAME and TXT records named by inst and returns a
// VerificationInput for the pure verification function. Lookup failures are
// recorded on the input rather than returned.
func (r *Resolver) Resolve(ctx context.Context, inst domain.Instructions) coredns.VerificationInput {
	var input coredns.VerificationInput

	cnames, err := r.Query(ctx, inst.CNAME.Name, dns.TypeCNAME)
	if err != nil {
		r.logger.Warn("CNAME lookup failed", "name", inst.CNAME.Name, "error", err)
		input.CNAMEError = err.Error()
	}
	input.CNAMEAnswers = cnames

	txts, err := r.Query(ctx, inst.TXT.Name, dns.TypeTXT)
	if err != nil {
		r.logger.Warn("TXT lookup failed", "name", inst.TXT.Name, "error", err)
		input.TXTError = err.Error()
	}
	input.TXTAnswers = txts

	return input
}

func rcodeName(rcode int) string {
	if s, ok := dns.RcodeToString[rcode]; ok {
		return s
	}
	return fmt.Sprintf("RCODE%d", rcode)
}

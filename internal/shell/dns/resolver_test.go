package dns

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/artpar/linkhost/internal/core/domain"
	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDoH serves canned JSON answers keyed by "TYPE name".
func fakeDoH(t *testing.T, records map[string]dohResponse) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/dns-json", r.Header.Get("Accept"))
		key := r.URL.Query().Get("type") + " " + r.URL.Query().Get("name")
		resp, ok := records[key]
		if !ok {
			resp = dohResponse{Status: dns.RcodeNameError}
		}
		w.Header().Set("Content-Type", "application/dns-json")
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestResolver(url string) *Resolver {
	return NewResolver(Config{URL: url, RetryAttempts: 0})
}

func TestQuery_FiltersByType(t *testing.T) {
	server := fakeDoH(t, map[string]dohResponse{
		"CNAME shop.example.com": {
			Status: dns.RcodeSuccess,
			Answer: []dohAnswer{
				{Name: "shop.example.com", Type: dns.TypeCNAME, TTL: 300, Data: "edge.example.net."},
				{Name: "edge.example.net", Type: dns.TypeA, TTL: 300, Data: "192.0.2.1"},
			},
		},
	})

	answers, err := newTestResolver(server.URL).Query(context.Background(), "shop.example.com", dns.TypeCNAME)
	require.NoError(t, err)
	assert.Equal(t, []string{"edge.example.net."}, answers)
}

func TestQuery_NXDOMAINIsEmpty(t *testing.T) {
	server := fakeDoH(t, nil)

	answers, err := newTestResolver(server.URL).Query(context.Background(), "missing.example.com", dns.TypeTXT)
	require.NoError(t, err)
	assert.Empty(t, answers)
}

func TestQuery_ServerFailure(t *testing.T) {
	server := fakeDoH(t, map[string]dohResponse{
		"TXT broken.example.com": {Status: dns.RcodeServerFailure},
	})

	_, err := newTestResolver(server.URL).Query(context.Background(), "broken.example.com", dns.TypeTXT)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLookupFailed))
	assert.Contains(t, err.Error(), "SERVFAIL")
}

func TestQuery_Non2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	_, err := newTestResolver(server.URL).Query(context.Background(), "shop.example.com", dns.TypeTXT)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLookupFailed))
	assert.Contains(t, err.Error(), "400")
}

func TestQuery_MalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	_, err := newTestResolver(server.URL).Query(context.Background(), "shop.example.com", dns.TypeTXT)
	assert.True(t, errors.Is(err, ErrLookupFailed))
}

func TestResolve(t *testing.T) {
	server := fakeDoH(t, map[string]dohResponse{
		"CNAME shop.example.com": {
			Status: dns.RcodeSuccess,
			Answer: []dohAnswer{{Name: "shop.example.com", Type: dns.TypeCNAME, Data: "edge.example.net."}},
		},
		"TXT _cf-custom-hostname.shop.example.com": {
			Status: dns.RcodeServerFailure,
		},
	})

	inst := domain.Instructions{
		CNAME: domain.DNSRecord{Type: "CNAME", Name: "shop.example.com", Value: "edge.example.net"},
		TXT:   domain.DNSRecord{Type: "TXT", Name: "_cf-custom-hostname.shop.example.com", Value: "abc123"},
	}

	input := newTestResolver(server.URL).Resolve(context.Background(), inst)
	assert.Equal(t, []string{"edge.example.net."}, input.CNAMEAnswers)
	assert.Empty(t, input.CNAMEError)
	assert.Empty(t, input.TXTAnswers)
	assert.Contains(t, input.TXTError, "SERVFAIL")
}

func TestResolve_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	inst := domain.Instructions{
		CNAME: domain.DNSRecord{Name: "shop.example.com"},
		TXT:   domain.DNSRecord{Name: "_cf-custom-hostname.shop.example.com"},
	}
	input := newTestResolver(url).Resolve(context.Background(), inst)
	assert.NotEmpty(t, input.CNAMEError)
	assert.NotEmpty(t, input.TXTError)
}

// Package probe checks whether an activated hostname answers over HTTPS.
package probe

import (
	"context"
	"io"
	"net/http"
	"time"
)

// Result is the auxiliary liveness information reported after activation.
// It is never persisted.
type Result struct {
	Checked    bool   `json:"checked"`
	OK         bool   `json:"ok"`
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Prober issues liveness requests.
type Prober interface {
	Probe(ctx context.Context, hostname string) Result
}

// HTTPSProber requests https://<hostname>/ and reports the status code.
type HTTPSProber struct {
	client *http.Client
	scheme string
}

// NewHTTPSProber creates a prober with the given request timeout.
func NewHTTPSProber(timeout time.Duration) *HTTPSProber {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPSProber{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		scheme: "https",
	}
}

// Probe never fails; any transport error is reported in the Result.
// Responses below 500 count as reachable.
func (p *HTTPSProber) Probe(ctx context.Context, hostname string) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.scheme+"://"+hostname+"/", nil)
	if err != nil {
		return Result{Checked: true, Error: err.Error()}
	}
	req.Header.Set("User-Agent", "linkhost-probe/1")

	resp, err := p.client.Do(req)
	if err != nil {
		return Result{Checked: true, Error: err.Error()}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	return Result{
		Checked:    true,
		OK:         resp.StatusCode < 500,
		StatusCode: resp.StatusCode,
	}
}

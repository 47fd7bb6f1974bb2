package proxy

import "fmt"

// ProxyErrorType defines the type of proxy error.
type ProxyErrorType int

const (
	ErrorNotFound ProxyErrorType = iota
	ErrorUnavailable
)

// ProxyError represents an error during routing.
type ProxyError struct {
	Type       ProxyErrorType
	Hostname   string
	Message    string
	StatusCode int
}

// Error implements the error interface.
func (e ProxyError) Error() string {
	return e.Message
}

// NewNotFoundError creates an error for a hostname with no routable domain.
func NewNotFoundError(hostname string) ProxyError {
	return ProxyError{
		Type:       ErrorNotFound,
		Hostname:   hostname,
		Message:    fmt.Sprintf("domain not found: %s", hostname),
		StatusCode: 404,
	}
}

// NewUnavailableError creates an error for a failed lookup or unreachable upstream.
func NewUnavailableError(hostname string) ProxyError {
	return ProxyError{
		Type:       ErrorUnavailable,
		Hostname:   hostname,
		Message:    fmt.Sprintf("domain unavailable: %s", hostname),
		StatusCode: 503,
	}
}

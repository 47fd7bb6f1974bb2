package domain

import (
	"errors"
	"net/http"
)

// =============================================================================
// Error Kinds
// =============================================================================

// Kind identifies a class of failure. It is mapped to a transport status once,
// at the API boundary.
type Kind string

const (
	KindInvalidRequest            Kind = "INVALID_REQUEST"
	KindInvalidHostname           Kind = "INVALID_HOSTNAME"
	KindWildcardNotAllowed        Kind = "WILDCARD_NOT_ALLOWED"
	KindApexNotAllowed            Kind = "APEX_NOT_ALLOWED"
	KindHostnameExists            Kind = "HOSTNAME_EXISTS"
	KindDistributionNotFound      Kind = "DISTRIBUTION_NOT_FOUND"
	KindForbiddenDistribution     Kind = "FORBIDDEN_DISTRIBUTION"
	KindUnauthenticated           Kind = "UNAUTHENTICATED"
	KindDomainNotFound            Kind = "DOMAIN_NOT_FOUND"
	KindNotFound                  Kind = "NOT_FOUND"
	KindDNSNotReady               Kind = "DNS_NOT_READY"
	KindDNSLookupFailed           Kind = "DNS_LOOKUP_FAILED"
	KindCloudflareHostnameMissing Kind = "CLOUDFLARE_HOSTNAME_MISSING"
	KindCloudflareError           Kind = "CLOUDFLARE_ERROR"
	KindCloudflareNotConfigured   Kind = "CLOUDFLARE_NOT_CONFIGURED"
	KindInternal                  Kind = "INTERNAL"
)

// Status returns the HTTP status code for k.
func (k Kind) Status() int {
	switch k {
	case KindInvalidRequest, KindInvalidHostname, KindWildcardNotAllowed,
		KindApexNotAllowed, KindCloudflareHostnameMissing:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbiddenDistribution:
		return http.StatusForbidden
	case KindDistributionNotFound, KindDomainNotFound, KindNotFound:
		return http.StatusNotFound
	case KindHostnameExists, KindDNSNotReady:
		return http.StatusConflict
	case KindCloudflareError, KindDNSLookupFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// =============================================================================
// Error
// =============================================================================

// Error is a tagged error carrying structured context for the caller.
type Error struct {
	Kind    Kind
	Message string
	Detail  any   // optional structured context, e.g. a DNS check result
	Err     error // underlying cause, not exposed to callers
}

func (e *Error) Error() string {
	if e.Err != nil && e.Err.Error() != e.Message {
		return string(e.Kind) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates an Error without a cause.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError creates an Error wrapping err.
func WrapError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithDetail returns a copy of e carrying detail.
func (e *Error) WithDetail(detail any) *Error {
	cp := *e
	cp.Detail = detail
	return &cp
}

// KindOf returns the Kind of err, or KindInternal if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Package proxy provides pure types and functions for the request router.
// This package has no I/O dependencies and is tested with values in/out.
package proxy

import "github.com/artpar/linkhost/internal/core/domain"

// Route is the destination for a request arriving on a custom domain.
// This is a pure data type with no I/O.
type Route struct {
	// Hostname is the normalized custom domain
	Hostname string `json:"hostname"`

	// DomainID is the custom domain record
	DomainID string `json:"domain_id"`

	// DistributionID is the distribution the domain serves
	DistributionID string `json:"distribution_id"`

	// LinkCode is the public code of the distribution
	LinkCode string `json:"link_code"`
}

// RouteFor returns the route for d. Only active domains attached to an
// existing distribution can accept traffic.
func RouteFor(d *domain.CustomDomain) (Route, bool) {
	if d == nil || d.Status != domain.StatusActive || d.Distribution == nil || d.Distribution.Code == "" {
		return Route{}, false
	}
	return Route{
		Hostname:       d.Hostname,
		DomainID:       d.ID,
		DistributionID: d.DistributionID,
		LinkCode:       d.Distribution.Code,
	}, true
}

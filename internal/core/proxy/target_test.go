package proxy

import (
	"testing"

	"github.com/artpar/linkhost/internal/core/domain"
	"github.com/stretchr/testify/assert"
)

func TestRouteFor(t *testing.T) {
	dist := &domain.Distribution{ID: "dist-1", Code: "spring-sale"}

	tests := []struct {
		name   string
		domain *domain.CustomDomain
		wantOK bool
	}{
		{
			name:   "active with distribution",
			domain: &domain.CustomDomain{ID: "cdom_1", Hostname: "shop.example.com", Status: domain.StatusActive, DistributionID: "dist-1", Distribution: dist},
			wantOK: true,
		},
		{
			name:   "verifying",
			domain: &domain.CustomDomain{Status: domain.StatusVerifying, Distribution: dist},
		},
		{
			name:   "pending dns",
			domain: &domain.CustomDomain{Status: domain.StatusPendingDNS, Distribution: dist},
		},
		{
			name:   "failed",
			domain: &domain.CustomDomain{Status: domain.StatusFailed, Distribution: dist},
		},
		{
			name:   "active without distribution",
			domain: &domain.CustomDomain{Status: domain.StatusActive},
		},
		{
			name: "nil",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			route, ok := RouteFor(tt.domain)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, Route{
					Hostname:       "shop.example.com",
					DomainID:       "cdom_1",
					DistributionID: "dist-1",
					LinkCode:       "spring-sale",
				}, route)
			} else {
				assert.Equal(t, Route{}, route)
			}
		})
	}
}

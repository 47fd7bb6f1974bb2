package proxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHostOnly(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "shop.example.com", "shop.example.com"},
		{"uppercase", "Shop.Example.COM", "shop.example.com"},
		{"with port", "shop.example.com:8080", "shop.example.com"},
		{"trailing dot", "shop.example.com.", "shop.example.com"},
		{"url", "https://linkhost.app/dashboard", "linkhost.app"},
		{"ipv6 with port", "[::1]:9091", "::1"},
		{"ipv6 bare", "::1", "::1"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HostOnly(tt.in))
		})
	}
}

func TestDefaultHosts_Contains(t *testing.T) {
	hosts := NewDefaultHosts("https://linkhost.app", "", "API.linkhost.app:443")

	tests := []struct {
		host string
		want bool
	}{
		{"localhost", true},
		{"localhost:9091", true},
		{"127.0.0.1:80", true},
		{"[::1]:80", true},
		{"linkhost.app", true},
		{"LINKHOST.app.", true},
		{"api.linkhost.app", true},
		{"shop.example.com", false},
		{"evil-linkhost.app", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			assert.Equal(t, tt.want, hosts.Contains(tt.host))
		})
	}
}

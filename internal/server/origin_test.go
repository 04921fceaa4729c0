package server

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestOriginPolicy(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{name: "exact match", allowed: []string{"http://localhost:8080"}, origin: "http://localhost:8080", want: true},
		{name: "case insensitive", allowed: []string{"http://LocalHost:8080"}, origin: "HTTP://localhost:8080", want: true},
		{name: "path ignored", allowed: []string{"https://chat.example/app"}, origin: "https://chat.example", want: true},
		{name: "other port rejected", allowed: []string{"http://localhost:8080"}, origin: "http://localhost:9999", want: false},
		{name: "missing origin rejected", allowed: []string{"http://localhost:8080"}, origin: "", want: false},
		{name: "wildcard", allowed: []string{"*"}, origin: "https://anything.example", want: true},
		{name: "wildcard still needs origin", allowed: []string{"*"}, origin: "", want: false},
		{name: "invalid config entry ignored", allowed: []string{"not a url", " "}, origin: "http://localhost:8080", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := newOriginPolicy(tt.allowed, zaptest.NewLogger(t))

			req := httptest.NewRequest("GET", "/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}

			assert.Equal(t, tt.want, policy.checkOrigin(req))
		})
	}
}

package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"

	"github.com/relabs-tech/pmpgw/core/config"
)

// Security enforces the supplemented security block (api_keys, jwt,
// ip_filter) ahead of the gateway router. Any sub-check configured must
// pass; a request failing one is rejected before it reaches orchestration.
func Security(cfg config.SecurityConfig, next http.Handler) http.Handler {
	if cfg.APIKeys == nil && cfg.JWT == nil && cfg.IPFilter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cfg.IPFilter != nil && !ipAllowed(cfg.IPFilter, r) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		if cfg.APIKeys != nil && !apiKeyValid(cfg.APIKeys, r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if cfg.JWT != nil && !jwtValid(cfg.JWT, r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func ipAllowed(cfg *config.IPFilterConfig, r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return len(cfg.Allowlist) == 0
	}
	for _, blocked := range cfg.Blocklist {
		if matchesCIDROrIP(blocked, ip) {
			return false
		}
	}
	if len(cfg.Allowlist) == 0 {
		return true
	}
	for _, allowed := range cfg.Allowlist {
		if matchesCIDROrIP(allowed, ip) {
			return true
		}
	}
	return false
}

func matchesCIDROrIP(pattern string, ip net.IP) bool {
	if _, cidr, err := net.ParseCIDR(pattern); err == nil {
		return cidr.Contains(ip)
	}
	return net.ParseIP(pattern).Equal(ip)
}

func apiKeyValid(cfg *config.APIKeyConfig, r *http.Request) bool {
	header := cfg.Header
	if header == "" {
		header = "X-Api-Key"
	}
	presented := r.Header.Get(header)
	if presented == "" {
		return false
	}
	for _, key := range cfg.Keys {
		if key == presented {
			return true
		}
	}
	return false
}

func jwtValid(cfg *config.JWTConfig, r *http.Request) bool {
	authz := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(authz, prefix) {
		return false
	}
	raw := strings.TrimPrefix(authz, prefix)

	claims := jwt.MapClaims{}
	parserOpts := []jwt.ParserOption{}
	if !cfg.ValidateExp {
		parserOpts = append(parserOpts, jwt.WithoutClaimsValidation())
	}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(cfg.Secret), nil
	}, parserOpts...)
	return err == nil
}

// Package middleware provides the HTTP middleware chain wrapped around the
// gateway router: CORS, request id, access logging, security and rate
// limiting. None of it is part of the orchestration core; all of it is
// ambient plumbing a running server needs.
package middleware

import (
	"net/http"

	"github.com/gorilla/handlers"

	"github.com/relabs-tech/pmpgw/core/config"
)

// CORS wraps next with gorilla/handlers' CORS middleware, configured from
// cfg. A nil cfg disables CORS entirely (next is returned unchanged).
func CORS(cfg *config.CORSConfig, next http.Handler) http.Handler {
	if cfg == nil {
		return next
	}
	opts := []handlers.CORSOption{}
	if len(cfg.AllowedOrigins) > 0 {
		opts = append(opts, handlers.AllowedOrigins(cfg.AllowedOrigins))
	}
	if len(cfg.AllowedMethods) > 0 {
		opts = append(opts, handlers.AllowedMethods(cfg.AllowedMethods))
	}
	if len(cfg.AllowedHeaders) > 0 {
		opts = append(opts, handlers.AllowedHeaders(cfg.AllowedHeaders))
	}
	if cfg.AllowCredentials {
		opts = append(opts, handlers.AllowCredentials())
	}
	if cfg.MaxAge > 0 {
		opts = append(opts, handlers.MaxAge(cfg.MaxAge))
	}
	return handlers.CORS(opts...)(next)
}

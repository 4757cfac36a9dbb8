package handlers

import (
	"net/http"

	"github.com/sentinelai/sentinel-engine/pkg/auth"
)

// ScopeMiddleware wraps a handler with per-request database connection scoping.
type ScopeMiddleware func(http.HandlerFunc) http.HandlerFunc

// protected chains authentication and connection scoping, in that order.
func protected(authMiddleware *auth.Middleware, scope ScopeMiddleware) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return authMiddleware.RequireAuth(scope(next))
	}
}

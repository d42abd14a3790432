package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/AFixt/meetabl-api/internal/http/response"
	"github.com/AFixt/meetabl-api/pkg/auth"
	"github.com/AFixt/meetabl-api/pkg/logger"
)

type ctxKey string

const CtxClaims ctxKey = "claims"

// RequireJWT guards host-only routes. The parsed claims land in the request
// context; the host's id also flows into the logging context.
func RequireJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := r.Header.Get("Authorization")
			if !strings.HasPrefix(authz, "Bearer ") {
				response.Unauthorized(w, "missing bearer token")
				return
			}
			claims, err := auth.Parse(strings.TrimPrefix(authz, "Bearer "), secret)
			if err != nil {
				response.Unauthorized(w, "invalid authorization token")
				return
			}
			if claims.Scope == "refresh" {
				response.Unauthorized(w, "refresh token cannot access resources")
				return
			}
			ctx := context.WithValue(r.Context(), CtxClaims, claims)
			ctx = logger.WithUserID(ctx, claims.Sub)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Claims returns the parsed JWT claims, or nil outside RequireJWT.
func Claims(r *http.Request) *auth.Claims {
	v := r.Context().Value(CtxClaims)
	if v == nil {
		return nil
	}
	return v.(*auth.Claims)
}

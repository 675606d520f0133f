package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/saferoute/saferoute/internal/api/models"
	"github.com/saferoute/saferoute/internal/auth"
)

// claimsKey is the context key for verified token claims.
type claimsKey struct{}

// TokenValidator verifies bearer tokens. *auth.JWTService satisfies it.
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// RequireAdmin returns middleware that admits only requests carrying a valid
// bearer token with the admin role. Invalid tokens get 401, valid tokens
// without the role get 403.
func RequireAdmin(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, detail := bearerToken(r)
			if detail != "" {
				writeAuthProblem(w, r, models.NewUnauthorized(GetRequestID(r.Context()), detail))
				return
			}

			claims, err := validator.ValidateToken(tokenString)
			if err != nil {
				switch {
				case errors.Is(err, auth.ErrTokenExpired):
					detail = "token has expired"
				case errors.Is(err, auth.ErrMissingSigningKey):
					detail = "admin authentication is not configured"
				default:
					detail = "invalid token"
				}
				writeAuthProblem(w, r, models.NewUnauthorized(GetRequestID(r.Context()), detail))
				return
			}

			if !claims.IsAdmin() {
				writeAuthProblem(w, r, models.NewForbidden(GetRequestID(r.Context()), "admin role required"))
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from the Authorization header. A non-empty
// detail explains why no token could be read.
func bearerToken(r *http.Request) (string, string) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", "missing authorization header"
	}

	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", "invalid authorization header format"
	}

	token := strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return "", "missing bearer token"
	}
	return token, ""
}

// writeAuthProblem writes the problem directly to avoid an import cycle
// with the response package.
func writeAuthProblem(w http.ResponseWriter, r *http.Request, problem *models.Problem) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="saferoute"`)
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// GetClaims returns the verified claims, or nil for unauthenticated requests.
func GetClaims(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey{}).(*auth.Claims)
	return claims
}

// GetSubject returns the authenticated subject, or "" if there is none.
func GetSubject(ctx context.Context) string {
	if claims := GetClaims(ctx); claims != nil {
		return claims.Subject
	}
	return ""
}

// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/inkwell-books/storefront-messaging/internal/model"
)

// ContextKey is a type for context keys.
type ContextKey string

const (
	// ViewerIDKey is the context key for the authenticated account id.
	ViewerIDKey ContextKey = "viewer_id"
	// RoleKey is the context key for the role the viewer acts under.
	RoleKey ContextKey = "role"
)

// Claims represents JWT claims. The subject is the account id.
type Claims struct {
	jwt.RegisteredClaims
	Role model.Role `json:"role"`
}

// Auth creates JWT authentication middleware.
func Auth(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				writeError(w, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(jwtSecret), nil
			})
			if err != nil || !token.Valid {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			if claims.Subject == "" || !claims.Role.Valid() {
				writeError(w, http.StatusUnauthorized, "token lacks subject or role")
				return
			}

			ctx := context.WithValue(r.Context(), ViewerIDKey, claims.Subject)
			ctx = context.WithValue(ctx, RoleKey, claims.Role)
			if info := requestInfoFrom(ctx); info != nil {
				info.viewerID = claims.Subject
				info.role = claims.Role
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetViewerID gets the authenticated account id from context.
func GetViewerID(ctx context.Context) string {
	if v, ok := ctx.Value(ViewerIDKey).(string); ok {
		return v
	}
	return ""
}

// GetRole gets the viewer's role from context.
func GetRole(ctx context.Context) model.Role {
	if v, ok := ctx.Value(RoleKey).(model.Role); ok {
		return v
	}
	return ""
}

// IsAdmin reports whether the viewer acts as an administrative agent.
func IsAdmin(ctx context.Context) bool {
	return GetRole(ctx) == model.RoleAdmin
}

// RequireRole creates middleware that requires the viewer to act under role.
func RequireRole(role model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if GetRole(r.Context()) != role {
				writeError(w, http.StatusForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}

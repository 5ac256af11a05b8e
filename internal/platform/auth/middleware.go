package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type contextKey string

const identityKey contextKey = "caller_identity"

// Identity is the authenticated caller extracted from the identity layer's
// JWT. Subject is the caller's user id; PatientID is set for patient
// callers, HospitalID for hospital staff.
type Identity struct {
	Subject    string
	Role       string
	HospitalID string
	PatientID  string
}

// Claims are the JWT claims the external identity provider issues for
// staff and patient callers.
type Claims struct {
	jwt.RegisteredClaims
	Role       string `json:"role"`
	HospitalID string `json:"hospital_id,omitempty"`
	PatientID  string `json:"patient_id,omitempty"`
}

// Middleware verifies the caller's bearer JWT (HMAC, issued by the external
// identity layer) and places the resulting Identity on the request context.
// All parse failures collapse into one 401 response.
func Middleware(signingKey []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
				return signingKey, nil
			}, jwt.WithValidMethods([]string{"HS256"}))
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			ident := Identity{
				Subject:    claims.Subject,
				Role:       claims.Role,
				HospitalID: claims.HospitalID,
				PatientID:  claims.PatientID,
			}

			ctx := context.WithValue(c.Request().Context(), identityKey, ident)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

// DevMiddleware is a permissive middleware for development. Requests without
// an Authorization header run as an admin identity taken from the
// X-Dev-Subject / X-Dev-Role headers (or defaults).
func DevMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ident := Identity{
				Subject:    c.Request().Header.Get("X-Dev-Subject"),
				Role:       c.Request().Header.Get("X-Dev-Role"),
				HospitalID: c.Request().Header.Get("X-Dev-Hospital"),
				PatientID:  c.Request().Header.Get("X-Dev-Patient"),
			}
			if ident.Subject == "" {
				ident.Subject = "dev-user"
			}
			if ident.Role == "" {
				ident.Role = "admin"
			}

			ctx := context.WithValue(c.Request().Context(), identityKey, ident)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// IdentityFromContext returns the authenticated caller, or a zero Identity
// when no auth middleware ran.
func IdentityFromContext(ctx context.Context) Identity {
	ident, _ := ctx.Value(identityKey).(Identity)
	return ident
}

// WithIdentity returns a context carrying the given identity. Intended for
// tests and internal calls that bypass the HTTP middleware.
func WithIdentity(ctx context.Context, ident Identity) context.Context {
	return context.WithValue(ctx, identityKey, ident)
}

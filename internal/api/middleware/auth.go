package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/example/clinic-pos/internal/auth"
)

const claimsKey = "claims"

func respondError(c echo.Context, status int, kind, message string) error {
	return c.JSON(status, map[string]any{
		"error": map[string]string{"kind": kind, "message": message},
	})
}

// ExtractToken extracts the JWT from the Authorization header, falling back
// to the access_token cookie used by the browser till.
func ExtractToken(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	if cookie, err := r.Cookie("access_token"); err == nil {
		return cookie.Value
	}
	return ""
}

// Auth validates bearer tokens and stores the claims on the context.
func Auth(jwtService *auth.JWTService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenString := ExtractToken(c.Request())
			if tokenString == "" {
				return respondError(c, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			}

			claims, err := jwtService.ValidateToken(tokenString)
			if err != nil {
				return respondError(c, http.StatusUnauthorized, "unauthorized", err.Error())
			}

			c.Set(claimsKey, claims)
			return next(c)
		}
	}
}

// DevAuth grants every request admin claims. Only wired when ENV=development
// and no JWT secret is configured.
func DevAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(claimsKey, &auth.Claims{CashierID: "dev", Role: auth.RoleAdmin})
			return next(c)
		}
	}
}

// RequireRole checks if the caller has one of the required roles
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, ok := ClaimsFrom(c)
			if !ok {
				return respondError(c, http.StatusUnauthorized, "unauthorized", "missing credentials")
			}
			if !claims.HasRole(roles...) {
				return respondError(c, http.StatusForbidden, "forbidden", "role "+claims.Role+" may not call this endpoint")
			}
			return next(c)
		}
	}
}

func ClaimsFrom(c echo.Context) (*auth.Claims, bool) {
	claims, ok := c.Get(claimsKey).(*auth.Claims)
	return claims, ok
}

// CashierID returns the authenticated cashier, or "" without claims.
func CashierID(c echo.Context) string {
	claims, ok := ClaimsFrom(c)
	if !ok {
		return ""
	}
	return claims.CashierID
}

package auth

import (
	"errors"

	"github.com/labstack/echo/v4"
)

// HeaderSecret carries the shared secret for endpoints without a JSON body.
const HeaderSecret = "X-Webhook-Secret"

// ContextKeyAuthorized is set on the echo context once the gate has passed.
const ContextKeyAuthorized = "auth.authorized"

// SecretFromRequest extracts the secret from the header or the query string.
func SecretFromRequest(c echo.Context) string {
	if v := c.Request().Header.Get(HeaderSecret); v != "" {
		return v
	}
	return c.QueryParam("secret")
}

// Middleware rejects requests whose header/query secret does not pass the
// gate. When optionalBody is true a failed check is deferred to the handler,
// which may still find the secret in the request body.
func Middleware(g *Gate, optionalBody bool, onDeny func(echo.Context) error) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := g.Check(SecretFromRequest(c))
			if err == nil {
				c.Set(ContextKeyAuthorized, true)
				return next(c)
			}
			if optionalBody && errors.Is(err, ErrUnauthorized) {
				return next(c)
			}
			return onDeny(c)
		}
	}
}

// Authorized reports whether the middleware already accepted this request.
func Authorized(c echo.Context) bool {
	ok, _ := c.Get(ContextKeyAuthorized).(bool)
	return ok
}

// Package echo provides Echo middleware enforcing L402 payment
// authentication.
package echo

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	l402 "github.com/plebos/l402-go"
)

// Middleware returns an Echo middleware enforcing L402. Requests without an
// L402 Authorization header receive a 402 challenge; presented credentials
// are verified and consumed before the next handler runs.
func Middleware(svc *l402.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, ok := l402.ParseAuthorization(c.Request().Header.Get("Authorization"))
			if !ok {
				return challenge(c, svc)
			}

			if err := svc.Verify(c.Request().Context(), token); err != nil {
				return c.JSON(errorStatus(err), map[string]interface{}{
					"error": err.Error(),
				})
			}

			return next(c)
		}
	}
}

func challenge(c echo.Context, svc *l402.Service) error {
	ch, err := svc.Challenge(c.Request().Context())
	if err != nil {
		return c.JSON(errorStatus(err), map[string]interface{}{
			"error": err.Error(),
		})
	}

	c.Response().Header().Set("WWW-Authenticate", ch.Header())
	return c.JSON(http.StatusPaymentRequired, map[string]interface{}{
		"message": "Payment Required",
		"invoice": ch.Invoice,
	})
}

func errorStatus(err error) int {
	var perr *l402.ProtocolError
	if errors.As(err, &perr) {
		return perr.Status
	}
	return http.StatusInternalServerError
}

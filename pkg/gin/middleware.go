// Package gin provides Gin middleware enforcing L402 payment authentication.
package gin

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	l402 "github.com/plebos/l402-go"
)

// Middleware returns a Gin handler enforcing L402 on the routes it is
// attached to. Requests without an L402 Authorization header are aborted with
// a 402 challenge; presented credentials are verified and consumed.
func Middleware(svc *l402.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := l402.ParseAuthorization(c.GetHeader("Authorization"))
		if !ok {
			abortWithChallenge(c, svc)
			return
		}

		if err := svc.Verify(c.Request.Context(), token); err != nil {
			c.AbortWithStatusJSON(errorStatus(err), gin.H{
				"error": err.Error(),
			})
			return
		}

		c.Next()
	}
}

func abortWithChallenge(c *gin.Context, svc *l402.Service) {
	challenge, err := svc.Challenge(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(errorStatus(err), gin.H{
			"error": err.Error(),
		})
		return
	}

	c.Header("WWW-Authenticate", challenge.Header())
	c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{
		"message": "Payment Required",
		"invoice": challenge.Invoice,
	})
}

func errorStatus(err error) int {
	var perr *l402.ProtocolError
	if errors.As(err, &perr) {
		return perr.Status
	}
	return http.StatusInternalServerError
}

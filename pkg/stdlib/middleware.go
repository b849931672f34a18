// Package stdlib provides net/http middleware enforcing L402 payment
// authentication.
package stdlib

import (
	"encoding/json"
	"errors"
	"net/http"

	l402 "github.com/plebos/l402-go"
)

// Middleware wraps a handler with L402 enforcement. Requests without an L402
// Authorization header receive a 402 challenge; requests presenting a
// credential and preimage are verified and either passed through unmodified
// or rejected with the status carried by the verification error.
func Middleware(svc *l402.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := l402.ParseAuthorization(r.Header.Get("Authorization"))
			if !ok {
				writeChallenge(w, r, svc)
				return
			}

			if err := svc.Verify(r.Context(), token); err != nil {
				writeError(w, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeChallenge(w http.ResponseWriter, r *http.Request, svc *l402.Service) {
	challenge, err := svc.Challenge(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", challenge.Header())
	w.WriteHeader(http.StatusPaymentRequired)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Payment Required",
		"invoice": challenge.Invoice,
	})
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var perr *l402.ProtocolError
	if errors.As(err, &perr) {
		status = perr.Status
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": err.Error(),
	})
}

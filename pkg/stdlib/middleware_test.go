package stdlib

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	l402 "github.com/plebos/l402-go"
)

type fakeProvider struct {
	err error
}

func (p *fakeProvider) GenerateInvoice(_ context.Context, _ int64, _, _ string) (*l402.Invoice, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &l402.Invoice{Bolt11: "lnbc100n1p0testinvoiceonly"}, nil
}

type fakeDecoder struct {
	paymentHash string
}

func (d *fakeDecoder) DecodeInvoice(string) (*l402.DecodedInvoice, error) {
	return &l402.DecodedInvoice{PaymentHash: d.paymentHash}, nil
}

func newTestService(t *testing.T, provider *fakeProvider) (*l402.Service, string) {
	t.Helper()

	preimage := make([]byte, 32)
	preimage[0] = 0x42
	sum := sha256.Sum256(preimage)

	pricing, err := l402.NewFixedPricing(100)
	require.NoError(t, err)

	svc, err := l402.NewService("stdlib-test-root-key", provider, pricing,
		l402.WithInvoiceDecoder(&fakeDecoder{paymentHash: hex.EncodeToString(sum[:])}),
		l402.WithExpiry(time.Minute))
	require.NoError(t, err)
	return svc, hex.EncodeToString(preimage)
}

var challengeRE = regexp.MustCompile(`^(L402|LSAT) macaroon="([^"]+)", invoice="([^"]+)"$`)

func parseChallenge(t *testing.T, header string) (macaroon, invoice string) {
	t.Helper()
	m := challengeRE.FindStringSubmatch(header)
	require.NotNil(t, m, "unexpected WWW-Authenticate header %q", header)
	return m[2], m[3]
}

func protectedHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("protected"))
	})
}

func TestMiddleware_ChallengeWhenUnauthenticated(t *testing.T) {
	svc, _ := newTestService(t, &fakeProvider{})
	handler := Middleware(svc)(protectedHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/paid", nil))

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	macaroon, invoice := parseChallenge(t, rec.Header().Get("WWW-Authenticate"))
	assert.NotEmpty(t, macaroon)
	assert.Equal(t, "lnbc100n1p0testinvoiceonly", invoice)
	assert.Contains(t, rec.Body.String(), "Payment Required")
}

func TestMiddleware_ForeignSchemeGetsChallenge(t *testing.T) {
	svc, _ := newTestService(t, &fakeProvider{})
	handler := Middleware(svc)(protectedHandler())

	req := httptest.NewRequest(http.MethodGet, "/paid", nil)
	req.Header.Set("Authorization", "Bearer some-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
}

func TestMiddleware_FullPaymentFlow(t *testing.T) {
	svc, preimage := newTestService(t, &fakeProvider{})
	handler := Middleware(svc)(protectedHandler())

	// Step 1: unauthenticated request yields the challenge.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/paid", nil))
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	macaroon, _ := parseChallenge(t, rec.Header().Get("WWW-Authenticate"))

	// Step 2: presenting the credential with the payment preimage succeeds.
	req := httptest.NewRequest(http.MethodGet, "/paid", nil)
	req.Header.Set("Authorization", "L402 "+macaroon+":"+preimage)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "protected", rec.Body.String())

	// Step 3: replaying the identical header is rejected.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "only valid once")
}

func TestMiddleware_LegacySchemeAccepted(t *testing.T) {
	svc, preimage := newTestService(t, &fakeProvider{})
	handler := Middleware(svc)(protectedHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/paid", nil))
	macaroon, _ := parseChallenge(t, rec.Header().Get("WWW-Authenticate"))

	req := httptest.NewRequest(http.MethodGet, "/paid", nil)
	req.Header.Set("Authorization", "LSAT "+macaroon+":"+preimage)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddleware_MalformedToken(t *testing.T) {
	svc, _ := newTestService(t, &fakeProvider{})
	handler := Middleware(svc)(protectedHandler())

	req := httptest.NewRequest(http.MethodGet, "/paid", nil)
	req.Header.Set("Authorization", "L402 bad-format-no-colon")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid L402 key format")
}

func TestMiddleware_WrongPreimage(t *testing.T) {
	svc, _ := newTestService(t, &fakeProvider{})
	handler := Middleware(svc)(protectedHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/paid", nil))
	macaroon, _ := parseChallenge(t, rec.Header().Get("WWW-Authenticate"))

	wrong := hex.EncodeToString(make([]byte, 32))
	req := httptest.NewRequest(http.MethodGet, "/paid", nil)
	req.Header.Set("Authorization", "L402 "+macaroon+":"+wrong)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMiddleware_ProviderFailure(t *testing.T) {
	svc, _ := newTestService(t, &fakeProvider{err: errors.New("node unreachable")})
	handler := Middleware(svc)(protectedHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/paid", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "couldn't generate invoice")
}

package gin

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	l402 "github.com/plebos/l402-go"
)

type fakeProvider struct{}

func (p *fakeProvider) GenerateInvoice(_ context.Context, _ int64, _, _ string) (*l402.Invoice, error) {
	return &l402.Invoice{Bolt11: "lnbc100n1p0testinvoiceonly"}, nil
}

type fakeDecoder struct {
	paymentHash string
}

func (d *fakeDecoder) DecodeInvoice(string) (*l402.DecodedInvoice, error) {
	return &l402.DecodedInvoice{PaymentHash: d.paymentHash}, nil
}

var challengeRE = regexp.MustCompile(`macaroon="([^"]+)", invoice="([^"]+)"`)

func newTestRouter(t *testing.T) (*gin.Engine, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	preimage := make([]byte, 32)
	preimage[0] = 0x42
	sum := sha256.Sum256(preimage)

	pricing, err := l402.NewFixedPricing(100)
	require.NoError(t, err)

	svc, err := l402.NewService("gin-test-root-key", &fakeProvider{}, pricing,
		l402.WithInvoiceDecoder(&fakeDecoder{paymentHash: hex.EncodeToString(sum[:])}),
		l402.WithExpiry(time.Minute))
	require.NoError(t, err)

	r := gin.New()
	r.Use(Middleware(svc))
	r.GET("/paid", func(c *gin.Context) {
		c.String(http.StatusOK, "protected")
	})
	return r, hex.EncodeToString(preimage)
}

func TestMiddleware_Challenge(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/paid", nil))

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Regexp(t, challengeRE, rec.Header().Get("WWW-Authenticate"))
	assert.Contains(t, rec.Body.String(), "Payment Required")
}

func TestMiddleware_PaymentFlow(t *testing.T) {
	r, preimage := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/paid", nil))
	require.Equal(t, http.StatusPaymentRequired, rec.Code)

	m := challengeRE.FindStringSubmatch(rec.Header().Get("WWW-Authenticate"))
	require.NotNil(t, m)
	macaroon := m[1]

	req := httptest.NewRequest(http.MethodGet, "/paid", nil)
	req.Header.Set("Authorization", "L402 "+macaroon+":"+preimage)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "protected", rec.Body.String())

	// Replay.
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMiddleware_Malformed(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/paid", nil)
	req.Header.Set("Authorization", "L402 bad-format-no-colon")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

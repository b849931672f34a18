package l402

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/plebos/l402-go/internal/metrics"
)

// Authentication scheme tokens. Challenges are issued with the configured
// scheme (L402 by default); inbound headers using the legacy LSAT token are
// accepted as well.
const (
	SchemeL402 = "L402"
	SchemeLSAT = "LSAT"
)

// DefaultExpiry bounds credential validity when no expiry is configured.
const DefaultExpiry = time.Hour

// invoiceLabelPrefix namespaces generated invoice labels so they are
// recognizable on the backing Lightning node.
const invoiceLabelPrefix = "LSAT_"

// Service is the L402 credential issuance and verification state machine.
// Challenge mints a macaroon bound to a fresh invoice's payment hash; Verify
// checks a presented macaroon plus payment preimage and consumes the
// credential exactly once.
type Service struct {
	rootKey      []byte
	provider     InvoiceProvider
	pricing      *Pricing
	decoder      InvoiceDecoder
	registry     *Registry
	expiry       time.Duration
	reapInterval time.Duration
	description  string
	scheme       string
	logger       *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithExpiry sets how long minted credentials stay valid.
func WithExpiry(expiry time.Duration) Option {
	return func(s *Service) {
		s.expiry = expiry
	}
}

// WithReapInterval sets how often the registry reaper sweeps expired entries.
func WithReapInterval(interval time.Duration) Option {
	return func(s *Service) {
		s.reapInterval = interval
	}
}

// WithInvoiceDescription sets the description passed to the invoice provider.
func WithInvoiceDescription(description string) Option {
	return func(s *Service) {
		s.description = description
	}
}

// WithScheme sets the scheme token used when issuing challenges. Verification
// accepts both L402 and LSAT regardless.
func WithScheme(scheme string) Option {
	return func(s *Service) {
		s.scheme = scheme
	}
}

// WithInvoiceDecoder overrides the default mainnet bolt11 decoder, e.g. for
// testnet chain parameters.
func WithInvoiceDecoder(decoder InvoiceDecoder) Option {
	return func(s *Service) {
		s.decoder = decoder
	}
}

// WithRegistry injects a shared single-use registry. Useful when several
// services must consume from one replay domain.
func WithRegistry(registry *Registry) Option {
	return func(s *Service) {
		s.registry = registry
	}
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService creates an L402 service. rootKey is the process-wide macaroon
// signing secret, provider generates invoices against the Lightning backend,
// and pricing resolves the satoshi amount to charge.
//
// The registry reaper is not started here; call Start for background reaping
// and Close on shutdown.
func NewService(rootKey string, provider InvoiceProvider, pricing *Pricing, opts ...Option) (*Service, error) {
	if rootKey == "" {
		return nil, errors.New("l402: root key must not be empty")
	}
	if provider == nil {
		return nil, errors.New("l402: invoice provider must not be nil")
	}
	if pricing == nil {
		return nil, errors.New("l402: pricing must not be nil")
	}

	s := &Service{
		rootKey:      []byte(rootKey),
		provider:     provider,
		pricing:      pricing,
		expiry:       DefaultExpiry,
		reapInterval: DefaultReapInterval,
		description:  "payment for endpoint",
		scheme:       SchemeL402,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.decoder == nil {
		s.decoder = NewInvoiceDecoder(nil)
	}
	if s.registry == nil {
		s.registry = NewRegistry()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.expiry <= 0 {
		return nil, errors.New("l402: expiry must be positive")
	}
	return s, nil
}

// Start launches the background registry reaper.
func (s *Service) Start() {
	s.registry.Start(s.reapInterval)
}

// Close stops the background registry reaper.
func (s *Service) Close() {
	s.registry.Stop()
}

// Registry returns the single-use registry backing the service.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Scheme returns the scheme token used when issuing challenges.
func (s *Service) Scheme() string {
	return s.scheme
}

// Challenge carries a freshly minted credential and the invoice whose payment
// redeems it.
type Challenge struct {
	// Macaroon is the serialized credential.
	Macaroon string
	// Invoice is the bolt11-encoded payment request.
	Invoice string
	// PaymentHash is the invoice's payment hash the credential is bound to.
	PaymentHash string

	scheme string
}

// Header renders the WWW-Authenticate value for a 402 response.
func (c *Challenge) Header() string {
	return fmt.Sprintf("%s macaroon=%q, invoice=%q", c.scheme, c.Macaroon, c.Invoice)
}

// Challenge resolves the price, requests a fresh invoice and mints a
// credential bound to its payment hash. Issuance has no side effects on the
// single-use registry.
func (s *Service) Challenge(ctx context.Context) (*Challenge, error) {
	label := invoiceLabelPrefix + uuid.NewString()

	sats, err := s.pricing.Resolve(ctx)
	if err != nil {
		metrics.ChallengesIssued.WithLabelValues(metrics.ResultError).Inc()
		return nil, protocolErrorf(ErrInvoiceGeneration, "couldn't resolve price: %v", err)
	}

	invoice, err := s.provider.GenerateInvoice(ctx, sats, label, s.description)
	if err != nil {
		metrics.ChallengesIssued.WithLabelValues(metrics.ResultError).Inc()
		s.logger.Error("invoice generation failed", "label", label, "err", err)
		return nil, protocolErrorf(ErrInvoiceGeneration, "couldn't generate invoice: %v", err)
	}

	decoded, err := s.decoder.DecodeInvoice(invoice.Bolt11)
	if err != nil {
		metrics.ChallengesIssued.WithLabelValues(metrics.ResultError).Inc()
		return nil, protocolErrorf(ErrInvoiceGeneration, "couldn't decode invoice: %v", err)
	}

	cred, err := MintCredential(s.rootKey, decoded.PaymentHash, time.Now().Add(s.expiry))
	if err != nil {
		metrics.ChallengesIssued.WithLabelValues(metrics.ResultError).Inc()
		return nil, protocolErrorf(ErrInvoiceGeneration, "couldn't mint credential: %v", err)
	}

	serialized, err := cred.String()
	if err != nil {
		metrics.ChallengesIssued.WithLabelValues(metrics.ResultError).Inc()
		return nil, protocolErrorf(ErrInvoiceGeneration, "couldn't serialize credential: %v", err)
	}

	metrics.ChallengesIssued.WithLabelValues(metrics.ResultOK).Inc()
	s.logger.Debug("issued challenge",
		"payment_hash", decoded.PaymentHash,
		"amount_sat", sats,
		"label", label)

	return &Challenge{
		Macaroon:    serialized,
		Invoice:     invoice.Bolt11,
		PaymentHash: decoded.PaymentHash,
		scheme:      s.scheme,
	}, nil
}

// Verify checks a presented token of the form
// "<serialized-credential>:<hex-preimage>" (the Authorization header value
// after the scheme prefix). On success the credential's identifier is
// atomically consumed; any later presentation fails with ErrAlreadyUsed.
func (s *Service) Verify(_ context.Context, token string) error {
	parts := strings.Split(token, ":")
	if len(parts) != 2 {
		metrics.Verifications.WithLabelValues(metrics.ResultMalformed).Inc()
		return ErrMalformedHeader
	}

	cred, err := DecodeCredential(parts[0])
	if err != nil {
		metrics.Verifications.WithLabelValues(metrics.ResultDecode).Inc()
		return protocolErrorf(ErrCredentialDecode, "couldn't deserialize macaroon: %v", err)
	}

	now := time.Now()
	if err := cred.Verify(s.rootKey, parts[1], now); err != nil {
		metrics.Verifications.WithLabelValues(metrics.ResultForbidden).Inc()
		s.logger.Debug("credential rejected", "payment_hash", cred.Identifier(), "err", err)
		return protocolErrorf(ErrVerification, "forbidden: %v", err)
	}

	// Every credential this service mints carries an expires caveat, so a
	// verified credential without one never got past the closed predicate
	// set above.
	expires, ok := cred.Expires()
	if !ok {
		metrics.Verifications.WithLabelValues(metrics.ResultForbidden).Inc()
		return protocolErrorf(ErrVerification, "credential carries no expiry")
	}

	// The replay check runs only after signature verification succeeded and
	// must be atomic with the insert: concurrent presentations of the same
	// identifier race here, and exactly one may win.
	if err := s.registry.Consume(cred.Identifier(), expires); err != nil {
		metrics.Verifications.WithLabelValues(metrics.ResultReplay).Inc()
		s.logger.Info("replay rejected", "payment_hash", cred.Identifier())
		return err
	}

	metrics.Verifications.WithLabelValues(metrics.ResultOK).Inc()
	s.logger.Debug("credential accepted", "payment_hash", cred.Identifier())
	return nil
}

// ParseAuthorization splits an Authorization header into its L402 token. It
// returns ok=false when the header is absent or uses a foreign scheme, which
// callers treat as the trigger for challenge issuance.
func ParseAuthorization(header string) (token string, ok bool) {
	for _, scheme := range []string{SchemeL402, SchemeLSAT} {
		if strings.HasPrefix(header, scheme+" ") {
			return strings.TrimPrefix(header, scheme+" "), true
		}
	}
	return "", false
}

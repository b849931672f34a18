package l402

import (
	"context"
	"errors"
	"fmt"
)

// FiatConverter converts a fiat amount into satoshis. Implementations
// typically hit an exchange-rate API, so the call takes a context.
type FiatConverter func(ctx context.Context, amount float64) (int64, error)

// Pricing construction errors.
var (
	ErrInvalidPrice = errors.New("l402: price must be a positive amount")
	ErrNilConverter = errors.New("l402: fiat pricing requires a conversion function")
)

// Pricing describes how the satoshi amount to charge is obtained: either a
// fixed amount or a fiat amount plus a converter. Exactly one of the two is
// set; the constructors enforce it. Immutable after construction.
type Pricing struct {
	fixedSat   int64
	fiatAmount float64
	convert    FiatConverter
}

// NewFixedPricing prices every challenge at a fixed satoshi amount.
func NewFixedPricing(sats int64) (*Pricing, error) {
	if sats <= 0 {
		return nil, ErrInvalidPrice
	}
	return &Pricing{fixedSat: sats}, nil
}

// NewFiatPricing prices challenges at a fiat amount, converted to satoshis at
// resolution time via convert.
func NewFiatPricing(amount float64, convert FiatConverter) (*Pricing, error) {
	if amount <= 0 {
		return nil, ErrInvalidPrice
	}
	if convert == nil {
		return nil, ErrNilConverter
	}
	return &Pricing{fiatAmount: amount, convert: convert}, nil
}

// Resolve returns the satoshi amount to charge. Fixed pricing returns the
// configured amount; fiat pricing invokes the converter and propagates its
// error.
func (p *Pricing) Resolve(ctx context.Context) (int64, error) {
	if p.convert == nil {
		return p.fixedSat, nil
	}

	sats, err := p.convert(ctx, p.fiatAmount)
	if err != nil {
		return 0, fmt.Errorf("converting fiat price: %w", err)
	}
	return sats, nil
}

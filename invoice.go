package l402

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightningnetwork/lnd/zpay32"
)

// Invoice is the structured result of invoice generation. Bolt11 is the
// encoded payment request handed to the client; Extra carries any additional
// backend-specific fields untouched.
type Invoice struct {
	Bolt11 string                 `json:"bolt11"`
	Extra  map[string]interface{} `json:"extra,omitempty"`
}

// InvoiceProvider generates Lightning invoices against a node or custodial
// backend. Any returned error is surfaced to the client as a server error.
type InvoiceProvider interface {
	GenerateInvoice(ctx context.Context, amountSat int64, label, description string) (*Invoice, error)
}

// InvoiceProviderFunc adapts a plain function to InvoiceProvider.
type InvoiceProviderFunc func(ctx context.Context, amountSat int64, label, description string) (*Invoice, error)

func (f InvoiceProviderFunc) GenerateInvoice(ctx context.Context, amountSat int64, label, description string) (*Invoice, error) {
	return f(ctx, amountSat, label, description)
}

// DecodedInvoice holds the fields this package consumes from a decoded bolt11
// payment request.
type DecodedInvoice struct {
	PaymentHash string
	AmountSat   int64
	Description string
}

// InvoiceDecoder decodes a bolt11 payment request. Deterministic, no I/O.
type InvoiceDecoder interface {
	DecodeInvoice(bolt11 string) (*DecodedInvoice, error)
}

// zpay32Decoder decodes bolt11 invoices using lnd's zpay32 codec.
type zpay32Decoder struct {
	params *chaincfg.Params
}

// NewInvoiceDecoder returns the default bolt11 decoder for the given chain
// parameters. A nil params defaults to mainnet.
func NewInvoiceDecoder(params *chaincfg.Params) InvoiceDecoder {
	if params == nil {
		params = &chaincfg.MainNetParams
	}
	return &zpay32Decoder{params: params}
}

func (d *zpay32Decoder) DecodeInvoice(bolt11 string) (*DecodedInvoice, error) {
	inv, err := zpay32.Decode(bolt11, d.params)
	if err != nil {
		return nil, fmt.Errorf("decoding bolt11 invoice: %w", err)
	}
	if inv.PaymentHash == nil {
		return nil, fmt.Errorf("invoice carries no payment hash")
	}

	decoded := &DecodedInvoice{
		PaymentHash: hex.EncodeToString(inv.PaymentHash[:]),
	}
	if inv.MilliSat != nil {
		decoded.AmountSat = int64(inv.MilliSat.ToSatoshis())
	}
	if inv.Description != nil {
		decoded.Description = *inv.Description
	}
	return decoded, nil
}

// Package l402 implements server-side enforcement of the L402 (formerly LSAT)
// protocol: pay-per-request HTTP access control backed by Lightning Network
// payments. A request without a credential receives a 402 challenge carrying a
// signed macaroon bound to an invoice's payment hash; a request presenting the
// macaroon plus the payment preimage is verified cryptographically and admitted
// exactly once.
//
// The package is framework-agnostic. Bindings for gin, echo and net/http live
// under pkg/.
package l402

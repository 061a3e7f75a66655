// Package google implements the OAuth2 broker for linking Gmail accounts.
//
// The Broker builds authorization URLs (carrying the user id as the opaque
// state token), exchanges one-time authorization codes for token pairs, and
// refreshes expired access tokens. Credential persistence is not handled
// here; the caller owns the account store.
//
// Exchange and refresh failures are surfaced as *ExchangeError and
// *RefreshError so callers can distinguish terminal credential failures
// (which require re-linking the account) from transient provider errors.
package google

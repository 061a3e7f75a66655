// Package mailing implements the application layer behind the mailing
// endpoints: listing and reading messages, sending, replying, forwarding and
// spam-marking, all executed through a runner that transparently refreshes an
// expired access token and retries the call exactly once.
package mailing

// Package gmail wraps the Gmail API for the mailing endpoints.
//
// It provides a client factory bound to a single access token, extraction of
// message summaries and details from Gmail's MIME part tree, category and
// filter handling for list queries, and RFC 2822 message construction for
// sending, replying and forwarding.
package gmail

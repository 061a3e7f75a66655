// Package accounts persists linked Gmail accounts and their OAuth
// credentials in a local SQLite database.
//
// Each row represents one (user, mailbox) pair together with the access and
// refresh tokens obtained during the OAuth link flow. The store exclusively
// owns the credential fields: token refresh results are written back here
// and nowhere else.
//
// At most one account per user is marked as principal (the default mailbox);
// SetPrincipal demotes all sibling rows in the same transaction.
package accounts

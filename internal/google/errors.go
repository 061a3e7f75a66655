package google

import "fmt"

// ExchangeError indicates that trading an authorization code for tokens
// failed. Authorization codes are single-use; callers must not retry the
// exchange with the same code.
type ExchangeError struct {
	Err error
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("oauth code exchange failed: %v", e.Err)
}

func (e *ExchangeError) Unwrap() error { return e.Err }

// RefreshError indicates that the refresh token itself was rejected. This is
// terminal for the account: the user must re-link the mailbox. It is distinct
// from a transient provider outage during an otherwise valid API call.
type RefreshError struct {
	Err error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("oauth token refresh failed: %v", e.Err)
}

func (e *RefreshError) Unwrap() error { return e.Err }

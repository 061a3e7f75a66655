package mailing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/unisend/mailgate/internal/accounts"
	"github.com/unisend/mailgate/internal/gmail"
	"github.com/unisend/mailgate/internal/instrumentation"
	"github.com/unisend/mailgate/internal/logging"
)

// TokenRefresher mints a new access token from a refresh token.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (string, error)
}

// TokenWriter persists a refreshed access token for an account.
type TokenWriter interface {
	UpdateAccessToken(ctx context.Context, userID, email, newToken string) error
}

// Runner executes provider calls with transparent token refresh. On an
// authorization failure it refreshes the access token, persists it, and
// retries the call exactly once. A second authorization failure is surfaced
// as-is; there is never a second refresh.
type Runner struct {
	refresher TokenRefresher
	tokens    TokenWriter
	metrics   *instrumentation.Metrics
	logger    *slog.Logger
}

// NewRunner creates a Runner. metrics may be a disabled recorder.
func NewRunner(refresher TokenRefresher, tokens TokenWriter, metrics *instrumentation.Metrics, logger *slog.Logger) *Runner {
	return &Runner{
		refresher: refresher,
		tokens:    tokens,
		metrics:   metrics,
		logger:    logger,
	}
}

// Do invokes call with the account's current access token. The call closure
// must build its own client from the token it receives, so the retry naturally
// picks up the refreshed token. The account's AccessToken field is updated in
// place after a successful refresh.
func (r *Runner) Do(ctx context.Context, account *accounts.EmailAccount, operation string, call func(ctx context.Context, accessToken string) error) error {
	logger := logging.WithOperation(r.logger, operation)
	anonymized := logging.AnonymizeEmail(account.Email)

	start := time.Now()
	err := call(ctx, account.AccessToken)
	if err == nil {
		r.metrics.RecordGmailOperation(ctx, operation, instrumentation.StatusSuccess, anonymized, time.Since(start))
		return nil
	}
	if !gmail.IsAuthError(err) {
		r.metrics.RecordGmailOperation(ctx, operation, instrumentation.StatusError, anonymized, time.Since(start))
		return err
	}

	logger.InfoContext(ctx, "access token expired, refreshing",
		logging.UserHash(account.Email))

	newToken, refreshErr := r.refresher.Refresh(ctx, account.RefreshToken)
	if refreshErr != nil {
		r.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.StatusError)
		logger.ErrorContext(ctx, "token refresh failed",
			logging.UserHash(account.Email),
			logging.Err(refreshErr))
		return refreshErr
	}
	r.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.StatusSuccess)

	if err := r.tokens.UpdateAccessToken(ctx, account.UserID, account.Email, newToken); err != nil {
		return fmt.Errorf("failed to persist refreshed access token: %w", err)
	}
	account.AccessToken = newToken

	retryStart := time.Now()
	err = call(ctx, newToken)
	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
	}
	r.metrics.RecordGmailOperation(ctx, operation, status, anonymized, time.Since(retryStart))
	return err
}

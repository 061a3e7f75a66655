package google

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// Grant is the outcome of a successful authorization code exchange: the
// mailbox address the tokens belong to, plus the tokens themselves.
type Grant struct {
	Email        string
	AccessToken  string
	RefreshToken string
}

// Broker drives the OAuth2 authorization code flow against Google and mints
// fresh access tokens from stored refresh tokens.
type Broker struct {
	conf *oauth2.Config

	// profileEmail resolves the mailbox address for a freshly exchanged
	// token. Overridable in tests.
	profileEmail func(ctx context.Context, token *oauth2.Token) (string, error)
}

// NewBroker returns a Broker for the given OAuth client credentials.
// redirectURL must match one of the redirect URIs registered for the client.
func NewBroker(clientID, clientSecret, redirectURL string) *Broker {
	b := &Broker{
		conf: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     googleoauth.Endpoint,
			RedirectURL:  redirectURL,
			Scopes: []string{
				gmail.GmailSendScope,
				gmail.GmailModifyScope,
				gmail.GmailLabelsScope,
			},
		},
	}
	b.profileEmail = b.fetchProfileEmail
	return b
}

// AuthCodeURL returns the consent page URL for the given user. The user ID
// travels as the OAuth state parameter and comes back on the callback, which
// is how the callback knows which user is linking a mailbox. Offline access
// is requested so Google issues a refresh token.
func (b *Broker) AuthCodeURL(userID string) string {
	return b.conf.AuthCodeURL(userID, oauth2.AccessTypeOffline)
}

// Exchange trades an authorization code for tokens and resolves the mailbox
// address they belong to. Codes are single-use; a failed exchange must not be
// retried with the same code.
func (b *Broker) Exchange(ctx context.Context, code string) (*Grant, error) {
	tok, err := b.conf.Exchange(ctx, code)
	if err != nil {
		return nil, &ExchangeError{Err: err}
	}
	if tok.RefreshToken == "" {
		return nil, &ExchangeError{Err: fmt.Errorf("no refresh token in response; consent may need prompt=consent")}
	}

	email, err := b.profileEmail(ctx, tok)
	if err != nil {
		return nil, &ExchangeError{Err: fmt.Errorf("failed to resolve mailbox address: %w", err)}
	}

	return &Grant{
		Email:        email,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}, nil
}

// Refresh mints a new access token from a stored refresh token. The refresh
// token itself is long-lived and is not rotated here.
func (b *Broker) Refresh(ctx context.Context, refreshToken string) (string, error) {
	ts := b.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := ts.Token()
	if err != nil {
		return "", &RefreshError{Err: err}
	}
	return tok.AccessToken, nil
}

func (b *Broker) fetchProfileEmail(ctx context.Context, token *oauth2.Token) (string, error) {
	svc, err := gmail.NewService(ctx, option.WithTokenSource(oauth2.StaticTokenSource(token)))
	if err != nil {
		return "", fmt.Errorf("failed to create Gmail service: %w", err)
	}
	profile, err := svc.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to fetch Gmail profile: %w", err)
	}
	return profile.EmailAddress, nil
}

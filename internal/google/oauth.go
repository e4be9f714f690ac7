package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/gmail/v1"
)

const (
	credentialsFile = "credentials.json"
	// OutOfBandRedirect is used by the CLI auth flow, where the user pastes the code.
	OutOfBandRedirect = "urn:ietf:wg:oauth:2.0:oob"
)

var scopes = []string{calendar.CalendarScope, gmail.GmailSendScope}

// TokenStore persists serialized OAuth tokens per user.
type TokenStore interface {
	SaveGoogleToken(ctx context.Context, userID string, token []byte) error
	GoogleToken(ctx context.Context, userID string) ([]byte, error)
}

// OAuthConfig returns the OAuth2 config for the given redirect URL.
// It prioritizes environment variables over a local credentials.json file.
func OAuthConfig(clientID, clientSecret, redirectURL string) (*oauth2.Config, error) {
	if clientID != "" && clientSecret != "" {
		return &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       scopes,
			Endpoint:     google.Endpoint,
		}, nil
	}

	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			return nil, fmt.Errorf("credentials.json not found. Please provide GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET env vars or place credentials.json in the working directory")
		}
		return nil, fmt.Errorf("unable to read client secret file: %w", err)
	}

	config, err := google.ConfigFromJSON(b, scopes...)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}
	config.RedirectURL = redirectURL
	return config, nil
}

// Exchange trades an authorization code for a token and stores it for userID.
func Exchange(ctx context.Context, config *oauth2.Config, store TokenStore, userID, authCode string) (*oauth2.Token, error) {
	token, err := config.Exchange(ctx, authCode)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve token from web: %w", err)
	}
	if err := saveToken(ctx, store, userID, token); err != nil {
		return nil, err
	}
	return token, nil
}

// HTTPClient returns an authenticated client for userID. Tokens refreshed
// by the client are written back to store.
func HTTPClient(ctx context.Context, logger *slog.Logger, config *oauth2.Config, store TokenStore, userID string) (*http.Client, error) {
	b, err := store.GoogleToken(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("could not load google token for user %s: %w", userID, err)
	}
	token := &oauth2.Token{}
	if err := json.Unmarshal(b, token); err != nil {
		return nil, fmt.Errorf("corrupt google token for user %s: %w", userID, err)
	}

	ts := &persistingTokenSource{
		base:   config.TokenSource(context.WithoutCancel(ctx), token),
		store:  store,
		userID: userID,
		last:   token.AccessToken,
		logger: logger,
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(token, ts)), nil
}

// persistingTokenSource saves every newly minted token.
type persistingTokenSource struct {
	base   oauth2.TokenSource
	store  TokenStore
	userID string
	logger *slog.Logger

	mu   sync.Mutex
	last string
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	token, err := p.base.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh google token: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if token.AccessToken != p.last {
		if err := saveToken(context.Background(), p.store, p.userID, token); err != nil {
			p.logger.Error("Failed to persist refreshed google token", "user", p.userID, "error", err)
		} else {
			p.logger.Debug("Persisted refreshed google token", "user", p.userID)
		}
		p.last = token.AccessToken
	}
	return token, nil
}

func saveToken(ctx context.Context, store TokenStore, userID string, token *oauth2.Token) error {
	b, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if err := store.SaveGoogleToken(ctx, userID, b); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

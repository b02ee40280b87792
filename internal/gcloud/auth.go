package gcloud

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/samaker/samaker/internal/tokenfile"
)

// Scopes requested during authorization: IAM for service account and key
// management, Drive for shared drive listing and permission grants.
var defaultScopes = []string{
	"https://www.googleapis.com/auth/cloud-platform",
	"https://www.googleapis.com/auth/drive",
}

// redirectOOB is the out-of-band redirect: the consent page displays the
// authorization code for the user to paste into the terminal instead of
// redirecting to a local server.
const redirectOOB = "urn:ietf:wg:oauth:2.0:oob"

// AuthorizeURL returns the consent URL for the given OAuth client. Pure
// construction, no side effects; the caller displays it and collects the
// single-use authorization code from the user.
func AuthorizeURL(clientID, clientSecret string) string {
	cfg := oauthConfig(clientID, clientSecret)

	return cfg.AuthCodeURL("state", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades a one-time authorization code for an access/refresh token
// pair and persists it at tokenPath before returning. Any failure (network,
// rejected code, or a response without an access token) is ErrAuthExchange
// and leaves the credential store untouched. Codes are single-use, so there
// is no retry; the user must restart `authorize`.
func Exchange(ctx context.Context, clientID, clientSecret, code, tokenPath string, logger *slog.Logger) (*oauth2.Token, error) {
	cfg := oauthConfig(clientID, clientSecret)

	return doExchange(ctx, cfg, code, tokenPath, logger)
}

// doExchange implements the code exchange. Accepts a pre-built oauth2.Config
// so tests can inject a mock token endpoint.
func doExchange(ctx context.Context, cfg *oauth2.Config, code, tokenPath string, logger *slog.Logger) (*oauth2.Token, error) {
	logger.Info("exchanging authorization code",
		slog.String("path", tokenPath),
	)

	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthExchange, err)
	}

	if tok.AccessToken == "" {
		return nil, fmt.Errorf("%w: response missing access token", ErrAuthExchange)
	}

	if saveErr := tokenfile.Save(tokenPath, tok); saveErr != nil {
		return nil, fmt.Errorf("gcloud: saving token: %w", saveErr)
	}

	logger.Info("authorization successful",
		slog.String("path", tokenPath),
		slog.Time("expiry", tok.Expiry),
	)

	return tok, nil
}

// TokenSourceFromPath loads the saved credential and returns a TokenSource
// that refreshes it when expired and persists every refreshed token back to
// tokenPath. Returns ErrNotAuthorized when no usable credential exists.
//
// ctx must outlive the TokenSource: if ctx is canceled, silent refresh will
// fail. Callers pass context.Background() for command-lifetime sources.
func TokenSourceFromPath(ctx context.Context, tokenPath, clientID, clientSecret string, logger *slog.Logger) (TokenSource, error) {
	tok, err := tokenfile.Load(tokenPath)
	if err != nil {
		return nil, err
	}

	if tok == nil {
		return nil, ErrNotAuthorized
	}

	expired := !tok.Expiry.IsZero() && tok.Expiry.Before(time.Now())
	logger.Debug("loaded saved token",
		slog.String("path", tokenPath),
		slog.Time("expiry", tok.Expiry),
		slog.Bool("expired", expired),
	)

	cfg := oauthConfig(clientID, clientSecret)

	return &persistingSource{
		src:    cfg.TokenSource(ctx, tok),
		path:   tokenPath,
		last:   tok,
		logger: logger,
	}, nil
}

// oauthConfig builds the oauth2.Config for Google's endpoints.
func oauthConfig(clientID, clientSecret string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  redirectOOB,
		Scopes:       defaultScopes,
	}
}

// persistingSource adapts oauth2.TokenSource to gcloud.TokenSource and
// writes refreshed tokens back to the token file, so the stored credential
// always reflects the last successful refresh. Workflows are single-threaded
// (the underlying ReuseTokenSource serializes refresh itself).
type persistingSource struct {
	src    oauth2.TokenSource
	path   string
	last   *oauth2.Token
	logger *slog.Logger
}

func (s *persistingSource) Token() (string, error) {
	tok, err := s.src.Token()
	if err != nil {
		s.logger.Warn("token acquisition failed", slog.String("error", err.Error()))
		return "", fmt.Errorf("gcloud: obtaining token: %w", err)
	}

	if s.last == nil || tok.AccessToken != s.last.AccessToken {
		s.logger.Info("token refreshed",
			slog.String("path", s.path),
			slog.Time("new_expiry", tok.Expiry),
		)

		if saveErr := tokenfile.Save(s.path, tok); saveErr != nil {
			// The in-memory token still works for this invocation.
			s.logger.Warn("failed to persist refreshed token",
				slog.String("path", s.path),
				slog.String("error", saveErr.Error()),
			)
		}
	}

	s.last = tok

	return tok.AccessToken, nil
}

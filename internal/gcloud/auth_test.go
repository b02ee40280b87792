package gcloud

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/samaker/samaker/internal/tokenfile"
)

// testTokenJSON is the canonical token response for tests.
const testTokenJSON = `{
	"access_token": "test-access-token",
	"token_type": "Bearer",
	"refresh_token": "test-refresh-token",
	"expires_in": 3600
}`

// newMockTokenServer creates a test server for the token endpoint.
// handler controls the endpoint behavior; nil returns testTokenJSON.
func newMockTokenServer(t *testing.T, handler http.HandlerFunc) oauth2.Endpoint {
	t.Helper()

	if handler == nil {
		handler = func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(testTokenJSON))
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		handler(w, r)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return oauth2.Endpoint{
		AuthURL:  srv.URL + "/auth",
		TokenURL: srv.URL + "/token",
	}
}

// testAuthConfig builds a config pointing at a mock token endpoint.
func testAuthConfig(t *testing.T, endpoint oauth2.Endpoint) *oauth2.Config {
	t.Helper()

	cfg := oauthConfig("test-client-id", "test-client-secret")
	cfg.Endpoint = endpoint

	return cfg
}

func TestAuthorizeURL(t *testing.T) {
	rawURL := AuthorizeURL("test-client-id", "test-client-secret")

	parsed, err := url.Parse(rawURL)
	require.NoError(t, err)

	q := parsed.Query()
	assert.Equal(t, "test-client-id", q.Get("client_id"))
	assert.Equal(t, redirectOOB, q.Get("redirect_uri"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "force", q.Get("approval_prompt"))
	assert.Contains(t, q.Get("scope"), "cloud-platform")
	assert.Contains(t, q.Get("scope"), "drive")

	// Deterministic: same inputs, same URL.
	assert.Equal(t, rawURL, AuthorizeURL("test-client-id", "test-client-secret"))
}

func TestDoExchange_Success(t *testing.T) {
	endpoint := newMockTokenServer(t, nil)
	tokenPath := filepath.Join(t.TempDir(), "token.json")

	cfg := testAuthConfig(t, endpoint)

	tok, err := doExchange(context.Background(), cfg, "auth-code", tokenPath, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, "test-access-token", tok.AccessToken)

	// The credential is persisted before the flow returns.
	loaded, loadErr := tokenfile.Load(tokenPath)
	require.NoError(t, loadErr)
	require.NotNil(t, loaded)
	assert.Equal(t, "test-access-token", loaded.AccessToken)
	assert.Equal(t, "test-refresh-token", loaded.RefreshToken)
}

func TestDoExchange_RejectedCode(t *testing.T) {
	endpoint := newMockTokenServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error": "invalid_grant"}`)
	})
	tokenPath := filepath.Join(t.TempDir(), "token.json")

	cfg := testAuthConfig(t, endpoint)

	_, err := doExchange(context.Background(), cfg, "expired-code", tokenPath, slog.Default())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthExchange)

	// A failed exchange never produces a stored credential.
	assert.False(t, tokenfile.Exists(tokenPath))
}

func TestDoExchange_MissingAccessToken(t *testing.T) {
	endpoint := newMockTokenServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"token_type": "Bearer", "expires_in": 3600}`)
	})
	tokenPath := filepath.Join(t.TempDir(), "token.json")

	cfg := testAuthConfig(t, endpoint)

	_, err := doExchange(context.Background(), cfg, "auth-code", tokenPath, slog.Default())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthExchange)
	assert.False(t, tokenfile.Exists(tokenPath))
}

func TestTokenSourceFromPath_NotAuthorized(t *testing.T) {
	tokenPath := filepath.Join(t.TempDir(), "token.json")

	_, err := TokenSourceFromPath(context.Background(), tokenPath, "id", "secret", slog.Default())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotAuthorized)
}

func TestTokenSourceFromPath_ValidToken(t *testing.T) {
	tokenPath := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, tokenfile.Save(tokenPath, &oauth2.Token{
		AccessToken: "still-valid",
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(time.Hour),
	}))

	ts, err := TokenSourceFromPath(context.Background(), tokenPath, "id", "secret", slog.Default())
	require.NoError(t, err)

	got, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "still-valid", got)
}

func TestPersistingSource_SavesRefreshedToken(t *testing.T) {
	var refreshes atomic.Int32

	endpoint := newMockTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)

		body := make([]byte, 1024)
		n, _ := r.Body.Read(body)
		assert.Contains(t, string(body[:n]), "grant_type=refresh_token")

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, strings.Replace(testTokenJSON, "test-access-token", "refreshed-access-token", 1))
	})

	tokenPath := filepath.Join(t.TempDir(), "token.json")
	expiredTok := &oauth2.Token{
		AccessToken:  "stale",
		RefreshToken: "test-refresh-token",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(-time.Hour),
	}
	require.NoError(t, tokenfile.Save(tokenPath, expiredTok))

	cfg := testAuthConfig(t, endpoint)
	src := &persistingSource{
		src:    cfg.TokenSource(context.Background(), expiredTok),
		path:   tokenPath,
		last:   expiredTok,
		logger: slog.Default(),
	}

	got, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, "refreshed-access-token", got)
	assert.Equal(t, int32(1), refreshes.Load())

	// Refresh must be written back to the store.
	loaded, err := tokenfile.Load(tokenPath)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "refreshed-access-token", loaded.AccessToken)
}

// Package auth provides series.Identity implementations backed by OAuth2
// tokens. Both identities double as oauth2.TokenSource for the remote
// providers, so signing out also stops outbound requests.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/oauth2"
)

// ErrNotSignedIn is returned by Token while no session is active.
var ErrNotSignedIn = errors.New("not signed in")

// OAuthIdentity signs in by redeeming a refresh token at the provider's
// token endpoint.
type OAuthIdentity struct {
	mu sync.Mutex

	cfg          *oauth2.Config
	refreshToken string
	source       oauth2.TokenSource
}

// NewOAuthIdentity creates a signed-out identity.
func NewOAuthIdentity(cfg *oauth2.Config, refreshToken string) *OAuthIdentity {
	return &OAuthIdentity{cfg: cfg, refreshToken: refreshToken}
}

func (i *OAuthIdentity) IsSignedIn() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.source != nil
}

// SignIn exchanges the refresh token for an access token. The session is
// only established when the exchange succeeds.
func (i *OAuthIdentity) SignIn(ctx context.Context) error {
	if i.refreshToken == "" {
		return errors.New("no refresh token configured")
	}

	// The source keeps ctx for later refreshes, so it must outlive the request.
	src := i.cfg.TokenSource(context.WithoutCancel(ctx), &oauth2.Token{RefreshToken: i.refreshToken})
	tok, err := src.Token()
	if err != nil {
		return fmt.Errorf("token exchange: %w", err)
	}

	i.mu.Lock()
	i.source = oauth2.ReuseTokenSource(tok, src)
	i.mu.Unlock()
	return nil
}

func (i *OAuthIdentity) SignOut() {
	i.mu.Lock()
	i.source = nil
	i.mu.Unlock()
}

// Token implements oauth2.TokenSource.
func (i *OAuthIdentity) Token() (*oauth2.Token, error) {
	i.mu.Lock()
	src := i.source
	i.mu.Unlock()
	if src == nil {
		return nil, ErrNotSignedIn
	}
	return src.Token()
}

// StaticIdentity uses a fixed access token. With an empty token it is an
// anonymous identity that is always signed in and sends no credentials.
type StaticIdentity struct {
	mu       sync.Mutex
	token    string
	signedIn bool
}

func NewStaticIdentity(accessToken string) *StaticIdentity {
	return &StaticIdentity{token: accessToken, signedIn: true}
}

func (i *StaticIdentity) IsSignedIn() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.signedIn
}

func (i *StaticIdentity) SignIn(ctx context.Context) error {
	i.mu.Lock()
	i.signedIn = true
	i.mu.Unlock()
	return nil
}

func (i *StaticIdentity) SignOut() {
	i.mu.Lock()
	i.signedIn = false
	i.mu.Unlock()
}

// Token implements oauth2.TokenSource. Anonymous identities return an empty
// access token, which providers treat as "no credentials".
func (i *StaticIdentity) Token() (*oauth2.Token, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.signedIn {
		return nil, ErrNotSignedIn
	}
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: i.token}).Token()
}

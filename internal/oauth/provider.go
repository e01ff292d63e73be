// Package oauth runs the authorization-code handshake with the delegated
// identity providers and turns their profile into delegated credentials.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/iliyamo/session-auth/internal/auth"
	"github.com/iliyamo/session-auth/internal/model"
)

// ErrExchange is returned when the provider rejects the authorization code
// or its profile endpoint fails.
var ErrExchange = errors.New("oauth exchange failed")

// Provider is one delegated identity provider.
type Provider interface {
	Name() model.Provider
	// AuthCodeURL is the consent page the browser is redirected to.
	AuthCodeURL(state string) string
	// Exchange trades an authorization code for the caller's profile.
	Exchange(ctx context.Context, code string) (auth.DelegatedCredentials, error)
}

// Options configures a provider. Zero Endpoint and APIBaseURL select the
// provider's public endpoints.
type Options struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Endpoint     oauth2.Endpoint
	APIBaseURL   string
	// HTTPClient is used for the token exchange and profile calls.
	HTTPClient *http.Client
}

func (o Options) config(def oauth2.Endpoint, scopes []string) *oauth2.Config {
	ep := o.Endpoint
	if ep.AuthURL == "" {
		ep = def
	}
	return &oauth2.Config{
		ClientID:     o.ClientID,
		ClientSecret: o.ClientSecret,
		RedirectURL:  o.CallbackURL,
		Endpoint:     ep,
		Scopes:       scopes,
	}
}

func (o Options) context(ctx context.Context) context.Context {
	if o.HTTPClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, o.HTTPClient)
}

// Registry holds the enabled providers keyed by name.
type Registry map[model.Provider]Provider

// Register adds p, replacing any provider with the same name.
func (r Registry) Register(p Provider) { r[p.Name()] = p }

// Get looks a provider up by its path segment.
func (r Registry) Get(name string) (Provider, bool) {
	p, ok := r[model.Provider(name)]
	return p, ok
}

// getJSON performs an authenticated GET against a provider API and decodes
// the JSON body into dst.
func getJSON(ctx context.Context, client *http.Client, url string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExchange, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: %s returned %d", ErrExchange, url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: decode profile: %w", ErrExchange, err)
	}
	return nil
}

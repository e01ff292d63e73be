package oauth

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/iliyamo/session-auth/internal/auth"
	"github.com/iliyamo/session-auth/internal/model"
)

const githubAPIBase = "https://api.github.com"

type github struct {
	opts    Options
	conf    *oauth2.Config
	apiBase string
}

// NewGitHub returns the GitHub provider requesting the user:email scope.
func NewGitHub(opts Options) Provider {
	base := opts.APIBaseURL
	if base == "" {
		base = githubAPIBase
	}
	return &github{
		opts:    opts,
		conf:    opts.config(endpoints.GitHub, []string{"user:email"}),
		apiBase: strings.TrimRight(base, "/"),
	}
}

func (g *github) Name() model.Provider { return model.ProviderGitHub }

func (g *github) AuthCodeURL(state string) string {
	return g.conf.AuthCodeURL(state)
}

type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func (g *github) Exchange(ctx context.Context, code string) (auth.DelegatedCredentials, error) {
	ctx = g.opts.context(ctx)
	tok, err := g.conf.Exchange(ctx, code)
	if err != nil {
		return auth.DelegatedCredentials{}, fmt.Errorf("%w: %w", ErrExchange, err)
	}
	client := g.conf.Client(ctx, tok)

	var u githubUser
	if err := getJSON(ctx, client, g.apiBase+"/user", &u); err != nil {
		return auth.DelegatedCredentials{}, err
	}
	if u.ID == 0 {
		return auth.DelegatedCredentials{}, fmt.Errorf("%w: profile without id", ErrExchange)
	}

	creds := auth.DelegatedCredentials{
		Provider:    model.ProviderGitHub,
		ExternalID:  strconv.FormatInt(u.ID, 10),
		DisplayName: u.Name,
		Username:    u.Login,
		AvatarURL:   u.AvatarURL,
	}

	// The public profile email carries no verification flag; the emails
	// endpoint does. It is best effort since the scope may be declined.
	var emails []githubEmail
	if err := getJSON(ctx, client, g.apiBase+"/user/emails", &emails); err == nil {
		if e, ok := primaryEmail(emails); ok {
			creds.Email, creds.EmailVerified = e.Email, e.Verified
		}
	}
	if creds.Email == "" {
		creds.Email = u.Email
	}
	return creds, nil
}

func primaryEmail(emails []githubEmail) (githubEmail, bool) {
	for _, e := range emails {
		if e.Primary {
			return e, true
		}
	}
	for _, e := range emails {
		if e.Verified {
			return e, true
		}
	}
	return githubEmail{}, false
}

package oauth

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/iliyamo/session-auth/internal/auth"
	"github.com/iliyamo/session-auth/internal/model"
)

const googleAPIBase = "https://openidconnect.googleapis.com"

type google struct {
	opts    Options
	conf    *oauth2.Config
	apiBase string
}

// NewGoogle returns the Google provider requesting the profile and email
// scopes.
func NewGoogle(opts Options) Provider {
	base := opts.APIBaseURL
	if base == "" {
		base = googleAPIBase
	}
	return &google{
		opts:    opts,
		conf:    opts.config(endpoints.Google, []string{"openid", "profile", "email"}),
		apiBase: strings.TrimRight(base, "/"),
	}
}

func (g *google) Name() model.Provider { return model.ProviderGoogle }

func (g *google) AuthCodeURL(state string) string {
	return g.conf.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

type googleProfile struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

func (g *google) Exchange(ctx context.Context, code string) (auth.DelegatedCredentials, error) {
	ctx = g.opts.context(ctx)
	tok, err := g.conf.Exchange(ctx, code)
	if err != nil {
		return auth.DelegatedCredentials{}, fmt.Errorf("%w: %w", ErrExchange, err)
	}

	var p googleProfile
	if err := getJSON(ctx, g.conf.Client(ctx, tok), g.apiBase+"/v1/userinfo", &p); err != nil {
		return auth.DelegatedCredentials{}, err
	}
	if p.Sub == "" {
		return auth.DelegatedCredentials{}, fmt.Errorf("%w: profile without subject", ErrExchange)
	}
	return auth.DelegatedCredentials{
		Provider:      model.ProviderGoogle,
		ExternalID:    p.Sub,
		Email:         p.Email,
		EmailVerified: p.EmailVerified,
		DisplayName:   p.Name,
		AvatarURL:     p.Picture,
	}, nil
}

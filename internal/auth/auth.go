package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Grant selects how the provider obtains its bearer token.
type Grant string

const (
	GrantStatic            Grant = "static"
	GrantClientCredentials Grant = "oauth2_client_credentials"
	GrantPassword          Grant = "oauth2_password"
)

// DefaultRefreshBeforeExpiry is how early a cached token is renewed when the
// caller does not set a window.
const DefaultRefreshBeforeExpiry = 30 * time.Second

const tokenRequestTimeout = 30 * time.Second

// ParseGrant validates a grant name. Empty means no authentication.
func ParseGrant(s string) (Grant, error) {
	switch g := Grant(strings.ToLower(strings.TrimSpace(s))); g {
	case "", GrantStatic, GrantClientCredentials, GrantPassword:
		return g, nil
	default:
		return "", fmt.Errorf("unsupported auth type %q (use static, oauth2_client_credentials or oauth2_password)", s)
	}
}

// Credentials configures a Provider.
type Credentials struct {
	Grant               Grant
	Token               string
	TokenURL            string
	ClientID            string
	ClientSecret        string
	Username            string
	Password            string
	Scopes              []string
	RefreshBeforeExpiry time.Duration
}

// Provider sets a bearer token on outgoing requests. Tokens fetched from an
// OAuth2 endpoint are cached and renewed shortly before they expire; one
// fetch is in flight at a time.
type Provider struct {
	grant  Grant
	src    oauth2.TokenSource
	client *http.Client
}

// New builds a provider for creds. It returns nil when no grant is set. Token
// requests carry ctx's values but not its cancellation, so operations still
// draining after shutdown can renew their token.
func New(ctx context.Context, creds Credentials) (*Provider, error) {
	grant, err := ParseGrant(string(creds.Grant))
	if err != nil {
		return nil, err
	}

	switch grant {
	case "":
		return nil, nil
	case GrantStatic:
		if strings.TrimSpace(creds.Token) == "" {
			return nil, errors.New("auth: token is required for static auth")
		}
		return &Provider{
			grant: grant,
			src:   oauth2.StaticTokenSource(&oauth2.Token{AccessToken: creds.Token, TokenType: "Bearer"}),
		}, nil
	}

	if strings.TrimSpace(creds.TokenURL) == "" {
		return nil, fmt.Errorf("auth: token_url is required for %s", grant)
	}
	if strings.TrimSpace(creds.ClientID) == "" {
		return nil, fmt.Errorf("auth: client_id is required for %s", grant)
	}

	window := creds.RefreshBeforeExpiry
	if window <= 0 {
		window = DefaultRefreshBeforeExpiry
	}

	client := &http.Client{Timeout: tokenRequestTimeout}
	fetchCtx := context.WithValue(context.WithoutCancel(ctx), oauth2.HTTPClient, client)

	var fetch fetchFunc
	switch grant {
	case GrantClientCredentials:
		cc := &clientcredentials.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			TokenURL:     creds.TokenURL,
			Scopes:       creds.Scopes,
			AuthStyle:    oauth2.AuthStyleInHeader,
		}
		fetch = func() (*oauth2.Token, error) { return cc.Token(fetchCtx) }
	case GrantPassword:
		if creds.Username == "" {
			return nil, fmt.Errorf("auth: username is required for %s", grant)
		}
		oc := &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			Scopes:       creds.Scopes,
			Endpoint: oauth2.Endpoint{
				TokenURL:  creds.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		}
		fetch = func() (*oauth2.Token, error) {
			return oc.PasswordCredentialsToken(fetchCtx, creds.Username, creds.Password)
		}
	}

	return &Provider{
		grant:  grant,
		src:    oauth2.ReuseTokenSourceWithExpiry(nil, fetch, window),
		client: client,
	}, nil
}

type fetchFunc func() (*oauth2.Token, error)

func (f fetchFunc) Token() (*oauth2.Token, error) { return f() }

// Grant reports the configured grant.
func (p *Provider) Grant() Grant {
	if p == nil {
		return ""
	}
	return p.grant
}

// Token returns the current access token, fetching one if needed. A nil
// provider has no token.
func (p *Provider) Token() (string, error) {
	if p == nil {
		return "", nil
	}
	tok, err := p.src.Token()
	if err != nil {
		return "", fmt.Errorf("auth: %w", err)
	}
	return tok.AccessToken, nil
}

// InjectHeader sets the Authorization header on req. A nil provider leaves
// the request untouched.
func (p *Provider) InjectHeader(req *http.Request) error {
	if p == nil {
		return nil
	}
	tok, err := p.src.Token()
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	tok.SetAuthHeader(req)
	return nil
}

// Close releases idle connections to the token endpoint.
func (p *Provider) Close() error {
	if p != nil && p.client != nil {
		p.client.CloseIdleConnections()
	}
	return nil
}

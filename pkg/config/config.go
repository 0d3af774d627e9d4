// Package config contains the definition of the gateway configuration
// structure and the logic required to load it from the environment.
package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"
)

// envPrefix is the prefix for all gateway environment variables,
// e.g. GATEWAY_PROVIDER_REGION.
const envPrefix = "GATEWAY"

// Provider holds the identity provider settings. The gateway assumes
// exactly one provider per deployment; the issuer and endpoint URLs are
// derived from the region, user pool and hosted domain.
type Provider struct {
	Region       string
	UserPoolID   string
	ClientID     string
	ClientSecret string
	Domain       string
	RedirectURI  string

	// Algorithm is the only signing algorithm accepted during token
	// verification. Tokens advertising anything else are rejected.
	Algorithm string

	// Scopes requested during the authorization-code flow.
	Scopes []string
}

// Issuer returns the expected issuer string for tokens minted by the
// provider's user pool.
func (p *Provider) Issuer() string {
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", p.Region, p.UserPoolID)
}

// JWKSURL returns the provider's published JSON Web Key Set endpoint.
func (p *Provider) JWKSURL() string {
	return p.Issuer() + "/.well-known/jwks.json"
}

// AuthorizeURL returns the hosted UI authorization endpoint.
func (p *Provider) AuthorizeURL() string {
	return fmt.Sprintf("https://%s/oauth2/authorize", p.Domain)
}

// TokenURL returns the token endpoint used for the code exchange.
func (p *Provider) TokenURL() string {
	return fmt.Sprintf("https://%s/oauth2/token", p.Domain)
}

// Cookie holds the session cookie settings.
type Cookie struct {
	Name     string
	Secure   bool
	SameSite string
}

// Settings represents the configuration of the gateway.
type Settings struct {
	// Address is the listen address for the HTTP server.
	Address string

	Provider Provider
	Cookie   Cookie

	// DatabasePath is the path to the SQLite user database.
	DatabasePath string

	// GenerationServiceURL and RAGServiceURL are the base URLs of the
	// downstream AI services.
	GenerationServiceURL string
	RAGServiceURL        string

	// FrontendURL is the origin the browser is redirected back to after
	// login, and the only origin allowed by CORS.
	FrontendURL string
}

// Validate checks that every setting required to run the gateway is present.
func (s *Settings) Validate() error {
	var missing []string
	required := map[string]string{
		"provider.region":        s.Provider.Region,
		"provider.user-pool-id":  s.Provider.UserPoolID,
		"provider.client-id":     s.Provider.ClientID,
		"provider.client-secret": s.Provider.ClientSecret,
		"provider.domain":        s.Provider.Domain,
		"provider.redirect-uri":  s.Provider.RedirectURI,
		"generation-service-url": s.GenerationServiceURL,
		"rag-service-url":        s.RAGServiceURL,
	}
	for key, value := range required {
		if value == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	if _, err := url.Parse(s.Provider.RedirectURI); err != nil {
		return fmt.Errorf("invalid redirect URI: %w", err)
	}

	switch s.Cookie.SameSite {
	case "lax", "strict", "none":
	default:
		return fmt.Errorf("invalid cookie same-site policy %q (valid: lax, strict, none)", s.Cookie.SameSite)
	}

	return nil
}

// SetDefaults registers the default values for all gateway settings on
// the given viper instance.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("address", ":8000")
	v.SetDefault("provider.algorithm", "RS256")
	v.SetDefault("provider.scopes", []string{"email", "openid", "profile"})
	v.SetDefault("cookie.name", "access_token")
	v.SetDefault("cookie.secure", false)
	v.SetDefault("cookie.same-site", "lax")
	v.SetDefault("database-path", "gateway.db")
	v.SetDefault("frontend-url", "http://localhost:3000")
}

// Load reads the gateway settings from the given viper instance, which
// must already have flags bound and defaults applied. Environment
// variables use the GATEWAY_ prefix with dots and dashes mapped to
// underscores (e.g. GATEWAY_PROVIDER_CLIENT_ID).
func Load(v *viper.Viper) (*Settings, error) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	settings := &Settings{
		Address: v.GetString("address"),
		Provider: Provider{
			Region:       v.GetString("provider.region"),
			UserPoolID:   v.GetString("provider.user-pool-id"),
			ClientID:     v.GetString("provider.client-id"),
			ClientSecret: v.GetString("provider.client-secret"),
			Domain:       v.GetString("provider.domain"),
			RedirectURI:  v.GetString("provider.redirect-uri"),
			Algorithm:    v.GetString("provider.algorithm"),
			Scopes:       v.GetStringSlice("provider.scopes"),
		},
		Cookie: Cookie{
			Name:     v.GetString("cookie.name"),
			Secure:   v.GetBool("cookie.secure"),
			SameSite: strings.ToLower(v.GetString("cookie.same-site")),
		},
		DatabasePath:         v.GetString("database-path"),
		GenerationServiceURL: strings.TrimSuffix(v.GetString("generation-service-url"), "/"),
		RAGServiceURL:        strings.TrimSuffix(v.GetString("rag-service-url"), "/"),
		FrontendURL:          strings.TrimSuffix(v.GetString("frontend-url"), "/"),
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}

	return settings, nil
}

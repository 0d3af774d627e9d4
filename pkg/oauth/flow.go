// Package oauth implements the authorization-code flow against the
// hosted identity provider.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/doculearn/gateway/pkg/config"
	"github.com/doculearn/gateway/pkg/networking"
)

// ErrCodeExchangeFailed is returned when the authorization code could not
// be exchanged for tokens. The underlying cause is wrapped.
var ErrCodeExchangeFailed = errors.New("authorization code exchange failed")

// exchangeTimeout bounds a single token-endpoint round trip.
const exchangeTimeout = 10 * time.Second

// TokenResult carries the tokens returned by a successful code exchange.
type TokenResult struct {
	// AccessToken is the provider-issued access token. It becomes the
	// session credential.
	AccessToken string

	// IDToken is the raw OIDC ID token, when the provider returned one.
	IDToken string

	// Lifetime is how long the access token is valid for. Zero when the
	// provider did not report an expiry.
	Lifetime time.Duration
}

// Flow drives the authorization-code flow for a single provider.
type Flow struct {
	oauth  *oauth2.Config
	client *http.Client
}

// FlowOption configures a Flow.
type FlowOption func(*Flow)

// WithHTTPClient sets a custom HTTP client for token-endpoint requests.
func WithHTTPClient(client *http.Client) FlowOption {
	return func(f *Flow) {
		f.client = client
	}
}

// WithEndpoints overrides the authorization and token endpoints derived
// from the provider domain. Intended for providers that do not follow the
// hosted-domain layout.
func WithEndpoints(authURL, tokenURL string) FlowOption {
	return func(f *Flow) {
		f.oauth.Endpoint = oauth2.Endpoint{
			AuthURL:  authURL,
			TokenURL: tokenURL,
		}
	}
}

// NewFlow builds a Flow from the provider configuration.
func NewFlow(provider config.Provider, opts ...FlowOption) (*Flow, error) {
	if provider.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if provider.RedirectURI == "" {
		return nil, errors.New("redirect URI is required")
	}

	f := &Flow{
		oauth: &oauth2.Config{
			ClientID:     provider.ClientID,
			ClientSecret: provider.ClientSecret,
			RedirectURL:  provider.RedirectURI,
			Scopes:       provider.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  provider.AuthorizeURL(),
				TokenURL: provider.TokenURL(),
			},
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		client, err := networking.NewHttpClientBuilder().
			WithTimeout(exchangeTimeout).
			Build()
		if err != nil {
			return nil, fmt.Errorf("failed to build HTTP client: %w", err)
		}
		f.client = client
	}
	return f, nil
}

// AuthCodeURL returns the provider authorization URL the browser should be
// redirected to. The state parameter is included only when non-empty.
func (f *Flow) AuthCodeURL(state string) string {
	return f.oauth.AuthCodeURL(state)
}

// Exchange redeems an authorization code at the token endpoint.
func (f *Flow) Exchange(ctx context.Context, code string) (*TokenResult, error) {
	ctx, cancel := context.WithTimeout(ctx, exchangeTimeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, f.client)

	token, err := f.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCodeExchangeFailed, err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("%w: response contained no access token", ErrCodeExchangeFailed)
	}

	result := &TokenResult{AccessToken: token.AccessToken}
	if idToken, ok := token.Extra("id_token").(string); ok {
		result.IDToken = idToken
	}
	if !token.Expiry.IsZero() {
		result.Lifetime = time.Until(token.Expiry)
	}
	return result, nil
}

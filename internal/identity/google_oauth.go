package identity

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/kanbanlab/kanban-client/config"
)

// GoogleProviderID is the federated provider identifier the identity
// service expects for Google sign-in assertions.
const GoogleProviderID = "google.com"

// GoogleOAuth drives the authorization-code flow that stands in for
// the browser popup: the caller sends the user to LoginURL, receives
// the code on the redirect, and exchanges it for a Google ID token.
type GoogleOAuth struct {
	cfg *oauth2.Config
}

func NewGoogleOAuth(cfg *config.OAuthConfig) *GoogleOAuth {
	return &GoogleOAuth{
		cfg: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
	}
}

// LoginURL returns the consent-screen URL for the given CSRF state.
func (g *GoogleOAuth) LoginURL(state string) string {
	return g.cfg.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// ExchangeCode swaps the authorization code for the OpenID Connect ID
// token embedded in Google's token response.
func (g *GoogleOAuth) ExchangeCode(ctx context.Context, code string) (string, error) {
	token, err := g.cfg.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	idToken, ok := token.Extra("id_token").(string)
	if !ok || idToken == "" {
		return "", fmt.Errorf("no id_token in token response")
	}

	return idToken, nil
}

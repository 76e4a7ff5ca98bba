package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// fakeGitHub serves the token endpoint and the two API paths Exchange uses.
func fakeGitHub(t *testing.T, user GitHubUser) *GitHubProvider {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "gh-token",
			"token_type":   "bearer",
		})
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer gh-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(user)
	})
	mux.HandleFunc("/user/emails", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"email": "secondary@example.com", "primary": false, "verified": true},
			{"email": "Octo@Example.com", "primary": true, "verified": true},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	p := NewGitHubProvider("client", "secret", "http://localhost/auth/github/callback")
	p.config.Endpoint = oauth2.Endpoint{
		AuthURL:  srv.URL + "/login/oauth/authorize",
		TokenURL: srv.URL + "/login/oauth/access_token",
	}
	p.apiBase = srv.URL
	return p
}

func TestAuthURL_CarriesState(t *testing.T) {
	p := NewGitHubProvider("client", "secret", "http://localhost/cb")
	state := NewState()

	u, err := url.Parse(p.AuthURL(state))
	require.NoError(t, err)
	assert.Equal(t, state, u.Query().Get("state"))
	assert.Equal(t, "client", u.Query().Get("client_id"))
}

func TestExchange(t *testing.T) {
	p := fakeGitHub(t, GitHubUser{ID: 42, Login: "octo", Email: "octo@example.com"})

	got, err := p.Exchange(context.Background(), "code")
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.ID)
	assert.Equal(t, "octo@example.com", got.Email)
}

func TestExchange_HiddenEmailUsesPrimary(t *testing.T) {
	p := fakeGitHub(t, GitHubUser{ID: 42, Login: "octo"})

	got, err := p.Exchange(context.Background(), "code")
	require.NoError(t, err)
	assert.Equal(t, "octo@example.com", got.Email)
}

func TestExchange_InvalidUser(t *testing.T) {
	p := fakeGitHub(t, GitHubUser{Login: "ghost"})

	_, err := p.Exchange(context.Background(), "code")
	assert.Error(t, err)
}

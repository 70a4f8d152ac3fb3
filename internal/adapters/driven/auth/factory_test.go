package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
)

func fakeEnv(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestFactory_NoTokenEnv(t *testing.T) {
	f := &Factory{getenv: fakeEnv(nil)}
	tp := f.CreateTokenProvider(domain.SyncUnit{ID: "u", Connector: "gmail"})

	assert.IsType(t, &NullTokenProvider{}, tp)
	assert.True(t, tp.IsAuthenticated())
	token, err := tp.GetToken(context.Background())
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestFactory_EnvToken(t *testing.T) {
	env := map[string]string{"GH_TOKEN": " ghp_abc \n"}
	f := &Factory{getenv: fakeEnv(env)}
	tp := f.CreateTokenProvider(domain.SyncUnit{ID: "u", Connector: "github", TokenEnv: "GH_TOKEN"})

	require.IsType(t, &EnvTokenProvider{}, tp)
	token, err := tp.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ghp_abc", token)

	delete(env, "GH_TOKEN")
	assert.False(t, tp.IsAuthenticated())
	_, err = tp.GetToken(context.Background())
	assert.ErrorIs(t, err, domain.ErrAuthRequired)
}

func TestFactory_OAuthRefresh(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "rt-1", r.PostForm.Get("refresh_token"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-1","token_type":"Bearer","expires_in":3600}`))
	}))
	defer srv.Close()

	f := &Factory{getenv: fakeEnv(map[string]string{
		"MAIL_REFRESH": "rt-1",
		"MAIL_ID":      "client",
		"MAIL_SECRET":  "secret",
	})}
	tp := f.CreateTokenProvider(domain.SyncUnit{
		ID:        "mailbox",
		Connector: "gmail",
		TokenEnv:  "MAIL_REFRESH",
		Config: map[string]string{
			ConfigOAuthClientIDEnv:     "MAIL_ID",
			ConfigOAuthClientSecretEnv: "MAIL_SECRET",
			ConfigOAuthTokenURL:        srv.URL,
		},
	})
	require.IsType(t, &OAuthTokenProvider{}, tp)
	assert.True(t, tp.IsAuthenticated())

	for range 2 {
		token, err := tp.GetToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "at-1", token)
	}
	assert.Equal(t, 1, calls)
}

func TestOAuthTokenProvider_Unconfigured(t *testing.T) {
	tp := NewOAuthTokenProvider(&oauth2.Config{ClientID: "c"}, "")
	assert.False(t, tp.IsAuthenticated())
	_, err := tp.GetToken(context.Background())
	assert.ErrorIs(t, err, domain.ErrAuthRequired)
}

func TestEndpointFor(t *testing.T) {
	assert.Equal(t, "https://github.com/login/oauth/access_token",
		endpointFor(domain.SyncUnit{Connector: "github"}).TokenURL)
	assert.Equal(t, "https://oauth2.googleapis.com/token",
		endpointFor(domain.SyncUnit{Connector: "gmail"}).TokenURL)
	assert.Equal(t, "https://example.com/token",
		endpointFor(domain.SyncUnit{Connector: "gmail", Config: map[string]string{ConfigOAuthTokenURL: "https://example.com/token"}}).TokenURL)
}

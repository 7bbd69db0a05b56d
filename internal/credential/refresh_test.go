package credential

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOIDCConfigNormalizedFillsZeroTimeouts(t *testing.T) {
	cfg := OIDCConfig{}.normalized()
	require.Equal(t, DefaultOIDCConfig.RefreshTimeout, cfg.RefreshTimeout)
	require.Equal(t, DefaultOIDCConfig.ProfileTimeout, cfg.ProfileTimeout)
}

func TestRegionEndpointTemplatesPerRegion(t *testing.T) {
	ep := regionEndpoint("eu-west-1")
	require.Equal(t, "https://oidc.eu-west-1.amazonaws.com/token", ep.TokenURL)
	require.Contains(t, ep.AuthURL, "eu-west-1")
}

func TestProfileEndpointTemplatesPerRegion(t *testing.T) {
	require.Equal(t, "https://oidc.us-east-1.amazonaws.com/profile", profileEndpoint("us-east-1"))
}

func TestHTTPClientCachesPerProxyAndTimeout(t *testing.T) {
	o := NewOIDCClient(DefaultOIDCConfig)

	c1, err := o.httpClient(time.Second, "")
	require.NoError(t, err)
	c2, err := o.httpClient(time.Second, "")
	require.NoError(t, err)
	require.Same(t, c1, c2)

	c3, err := o.httpClient(2*time.Second, "")
	require.NoError(t, err)
	require.NotSame(t, c1, c3)
}

func TestHTTPClientRejectsInvalidProxyURL(t *testing.T) {
	o := NewOIDCClient(DefaultOIDCConfig)
	_, err := o.httpClient(time.Second, "://not-a-url")
	require.Error(t, err)
}

func TestRefreshRejectsCredentialWithoutRefreshToken(t *testing.T) {
	o := NewOIDCClient(DefaultOIDCConfig)
	cred := &Credential{ID: 1, AuthMethod: AuthMethodIDC}

	_, _, _, err := o.refresh(context.Background(), cred)
	require.Error(t, err)
	cerr, ok := AsError(err)
	require.True(t, ok)
	require.Equal(t, KindRefreshTransient, cerr.Kind)
}

func TestRefreshRejectsIDCCredentialMissingClientCredentials(t *testing.T) {
	o := NewOIDCClient(DefaultOIDCConfig)
	cred := &Credential{ID: 1, RefreshToken: "r1", AuthMethod: AuthMethodIDC}

	_, _, _, err := o.refresh(context.Background(), cred)
	require.Error(t, err)
	cerr, ok := AsError(err)
	require.True(t, ok)
	require.Equal(t, KindRefreshTransient, cerr.Kind)
}

func TestRefreshRejectsUnknownAuthMethod(t *testing.T) {
	o := NewOIDCClient(DefaultOIDCConfig)
	cred := &Credential{ID: 1, RefreshToken: "r1", AuthMethod: AuthMethod("bogus")}

	_, _, _, err := o.refresh(context.Background(), cred)
	require.Error(t, err)
	cerr, ok := AsError(err)
	require.True(t, ok)
	require.Equal(t, KindRefreshTransient, cerr.Kind)
}

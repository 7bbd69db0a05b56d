package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// These are the public, secret-less OIDC client identifiers AWS assigns to
// the builder-id and social sign-in flows; idc credentials bring their own
// clientId/clientSecret pair instead.
const (
	builderIDPublicClientID = "arn:aws:sso::public:builder-id-cli"
	socialPublicClientID    = "arn:aws:sso::public:social-cli"
)

// OIDCConfig bounds the outbound refresh/profile HTTP calls.
type OIDCConfig struct {
	RefreshTimeout time.Duration
	ProfileTimeout time.Duration
}

// DefaultOIDCConfig gives a 30s timeout for refresh calls and a 10s
// timeout for the best-effort profile enrichment call.
var DefaultOIDCConfig = OIDCConfig{
	RefreshTimeout: 30 * time.Second,
	ProfileTimeout: 10 * time.Second,
}

func (c OIDCConfig) normalized() OIDCConfig {
	out := c
	if out.RefreshTimeout <= 0 {
		out.RefreshTimeout = DefaultOIDCConfig.RefreshTimeout
	}
	if out.ProfileTimeout <= 0 {
		out.ProfileTimeout = DefaultOIDCConfig.ProfileTimeout
	}
	return out
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in"`
	Error        string `json:"error,omitempty"`
	ErrorDesc    string `json:"error_description,omitempty"`
}

type profileResponse struct {
	SubscriptionTitle string  `json:"subscriptionTitle,omitempty"`
	Email             string  `json:"email,omitempty"`
	Remaining         float64 `json:"remaining,omitempty"`
	UsageLimit        float64 `json:"usageLimit,omitempty"`
	UsagePercentage   float64 `json:"usagePercentage,omitempty"`
}

// OIDCClient performs the refresh and opportunistic-profile HTTP calls
// against the upstream OIDC endpoint family, routing through a
// credential's proxyUrl when one is set. One http.Client is cached per
// distinct proxyUrl so that a burst of refreshes for the same proxied
// credential reuses connections instead of dialing fresh each time.
type OIDCClient struct {
	cfg OIDCConfig

	mu      sync.Mutex
	clients map[string]*http.Client
}

// NewOIDCClient constructs the OIDC HTTP client the Refresh Coordinator
// uses to reach the upstream refresh/profile endpoints.
func NewOIDCClient(cfg OIDCConfig) *OIDCClient {
	return &OIDCClient{
		cfg:     cfg.normalized(),
		clients: make(map[string]*http.Client),
	}
}

func (o *OIDCClient) httpClient(timeout time.Duration, proxyURL string) (*http.Client, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	key := fmt.Sprintf("%s|%s", proxyURL, timeout)
	if c, ok := o.clients[key]; ok {
		return c, nil
	}
	transport := &http.Transport{}
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxyUrl: %w", err)
		}
		transport.Proxy = http.ProxyURL(u)
	}
	c := &http.Client{Timeout: timeout, Transport: transport}
	o.clients[key] = c
	return c, nil
}

// regionEndpoint describes the per-region OIDC endpoint pair using
// oauth2.Endpoint the same way the interactive onboarding flow does;
// AuthURL is unused here since this path is a refresh, not a sign-in.
func regionEndpoint(region string) oauth2.Endpoint {
	return oauth2.Endpoint{
		AuthURL:  fmt.Sprintf("https://oidc.%s.amazonaws.com/authorize", region),
		TokenURL: fmt.Sprintf("https://oidc.%s.amazonaws.com/token", region),
	}
}

func profileEndpoint(region string) string {
	return fmt.Sprintf("https://oidc.%s.amazonaws.com/profile", region)
}

// refresh performs the token refresh for cred and returns the new access
// token, an optional rotated refresh token, and the absolute expiry. The
// returned error, when non-nil, is either a *Error with Kind
// RefreshRejected (permanent) or RefreshTransient (retryable).
func (o *OIDCClient) refresh(ctx context.Context, cred *Credential) (accessToken, newRefreshToken string, expiresAt time.Time, err error) {
	if cred.RefreshToken == "" {
		return "", "", time.Time{}, errRefreshTransient("no refresh token available")
	}

	region := cred.Region
	if region == "" {
		region = defaultRegion
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {cred.RefreshToken},
	}
	switch cred.AuthMethod {
	case AuthMethodIDC:
		if cred.ClientID == "" || cred.ClientSecret == "" {
			return "", "", time.Time{}, errRefreshTransient("idc credential missing client id/secret")
		}
		form.Set("client_id", cred.ClientID)
		form.Set("client_secret", cred.ClientSecret)
	case AuthMethodBuilderID:
		form.Set("client_id", builderIDPublicClientID)
	case AuthMethodSocial:
		form.Set("client_id", socialPublicClientID)
	default:
		return "", "", time.Time{}, errRefreshTransient(fmt.Sprintf("unknown auth method %q", cred.AuthMethod))
	}

	client, cerr := o.httpClient(o.cfg.RefreshTimeout, cred.ProxyURL)
	if cerr != nil {
		return "", "", time.Time{}, errRefreshTransient(cerr.Error())
	}

	req, rerr := http.NewRequestWithContext(ctx, http.MethodPost, regionEndpoint(region).TokenURL, strings.NewReader(form.Encode()))
	if rerr != nil {
		return "", "", time.Time{}, errRefreshTransient(rerr.Error())
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, derr := client.Do(req)
	if derr != nil {
		return "", "", time.Time{}, errRefreshTransient(derr.Error())
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var tr tokenResponse
		if jerr := json.Unmarshal(body, &tr); jerr != nil {
			return "", "", time.Time{}, errRefreshTransient("malformed token response: " + jerr.Error())
		}
		if tr.AccessToken == "" {
			return "", "", time.Time{}, errRefreshTransient("token response missing access_token")
		}
		expiry := time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
		return tr.AccessToken, tr.RefreshToken, expiry, nil
	}

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		var tr tokenResponse
		_ = json.Unmarshal(body, &tr)
		if tr.Error == "invalid_grant" || tr.Error == "invalid_refresh_token" || tr.Error == "unauthorized_client" {
			return "", "", time.Time{}, errRefreshRejected("invalid_refresh_token")
		}
		return "", "", time.Time{}, errRefreshTransient(fmt.Sprintf("refresh rejected transiently: status=%d body=%s", resp.StatusCode, string(body)))
	}

	return "", "", time.Time{}, errRefreshTransient(fmt.Sprintf("refresh failed: status=%d body=%s", resp.StatusCode, string(body)))
}

// fetchProfile is a best-effort enrichment call; the caller silently
// ignores failures.
func (o *OIDCClient) fetchProfile(ctx context.Context, cred *Credential) (profileResponse, error) {
	region := cred.Region
	if region == "" {
		region = defaultRegion
	}
	client, cerr := o.httpClient(o.cfg.ProfileTimeout, cred.ProxyURL)
	if cerr != nil {
		return profileResponse{}, cerr
	}

	req, rerr := http.NewRequestWithContext(ctx, http.MethodGet, profileEndpoint(region), nil)
	if rerr != nil {
		return profileResponse{}, rerr
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)

	resp, derr := client.Do(req)
	if derr != nil {
		return profileResponse{}, derr
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return profileResponse{}, fmt.Errorf("profile fetch failed: status=%d", resp.StatusCode)
	}
	var pr profileResponse
	if jerr := json.NewDecoder(resp.Body).Decode(&pr); jerr != nil {
		return profileResponse{}, jerr
	}
	return pr, nil
}

// RefreshCoordinator serves access_token/force_refresh against the Store,
// single-flighting concurrent refreshes per credential id.
type RefreshCoordinator struct {
	store       *Store
	client      *OIDCClient
	singleFlight *coordinator
	aheadWindow time.Duration
}

// NewRefreshCoordinator wires a Refresh Coordinator over store using
// client, refreshing aheadWindow before expiry (defaults to 5 minutes).
func NewRefreshCoordinator(store *Store, client *OIDCClient, aheadWindow time.Duration) *RefreshCoordinator {
	if aheadWindow <= 0 {
		aheadWindow = 5 * time.Minute
	}
	return &RefreshCoordinator{
		store:        store,
		client:       client,
		singleFlight: newCoordinator(),
		aheadWindow:  aheadWindow,
	}
}

// AccessToken returns a usable access token for id, refreshing first if the
// cached one is expired or within the refresh-ahead safety window.
func (rc *RefreshCoordinator) AccessToken(ctx context.Context, id int) (string, time.Time, error) {
	cred, err := rc.store.Get(id)
	if err != nil {
		return "", time.Time{}, err
	}
	if !cred.NeedsRefresh(time.Now(), rc.aheadWindow) {
		return cred.AccessToken, cred.ExpiresAt, nil
	}
	if err := rc.singleFlight.do(ctx, id, func(ctx context.Context) error {
		return rc.refreshOne(ctx, id)
	}); err != nil {
		return "", time.Time{}, err
	}
	cred, err = rc.store.Get(id)
	if err != nil {
		return "", time.Time{}, err
	}
	return cred.AccessToken, cred.ExpiresAt, nil
}

// ForceRefresh always refreshes id, regardless of current expiry.
func (rc *RefreshCoordinator) ForceRefresh(ctx context.Context, id int) error {
	return rc.singleFlight.do(ctx, id, func(ctx context.Context) error {
		return rc.refreshOne(ctx, id)
	})
}

func (rc *RefreshCoordinator) refreshOne(ctx context.Context, id int) error {
	cred, err := rc.store.Get(id)
	if err != nil {
		return err
	}

	accessToken, newRefreshToken, expiresAt, err := rc.client.refresh(ctx, cred)
	if err != nil {
		if rerr, ok := AsError(err); ok && rerr.Kind == KindRefreshRejected {
			_ = rc.store.ApplyRefreshRejected(id, rerr.Reason)
			log.WithField("id", id).Warn("refresh coordinator: upstream rejected refresh token, credential disabled")
			return err
		}
		_ = rc.store.ReportFailure(id, FailureTransient)
		return err
	}

	if err := rc.store.ApplyRefreshSuccess(id, accessToken, newRefreshToken, expiresAt); err != nil {
		return err
	}

	cred.AccessToken = accessToken
	if pr, perr := rc.client.fetchProfile(ctx, cred); perr == nil {
		rc.store.ApplyEnrichment(id, pr.SubscriptionTitle, pr.Email, pr.Remaining, pr.UsageLimit, pr.UsagePercentage)
	}
	return nil
}

// RefreshNow implements Refresher for Store.Add: it refreshes a
// not-yet-committed credential in place, outside the single-flight
// rendezvous (there is no id to key on yet) and outside the Store lock.
func (rc *RefreshCoordinator) RefreshNow(ctx context.Context, cred *Credential) error {
	accessToken, newRefreshToken, expiresAt, err := rc.client.refresh(ctx, cred)
	if err != nil {
		return err
	}
	cred.AccessToken = accessToken
	if newRefreshToken != "" {
		cred.RefreshToken = newRefreshToken
	}
	cred.ExpiresAt = expiresAt
	cred.LastRefreshAt = time.Now()

	if pr, perr := rc.client.fetchProfile(ctx, cred); perr == nil {
		cred.SubscriptionTitle = pr.SubscriptionTitle
		cred.Email = pr.Email
		cred.Remaining = pr.Remaining
		cred.UsageLimit = pr.UsageLimit
		cred.UsagePercentage = pr.UsagePercentage
	}
	return nil
}

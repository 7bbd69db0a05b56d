package credential

import (
	"time"
)

// AuthMethod selects which refresh endpoint/body shape a credential uses.
type AuthMethod string

const (
	AuthMethodIDC        AuthMethod = "idc"
	AuthMethodBuilderID  AuthMethod = "builder-id"
	AuthMethodSocial     AuthMethod = "social"
	defaultRegion                   = "us-east-1"
)

// FailureClass classifies an upstream outcome reported to the Failure Policy.
type FailureClass string

const (
	FailureTransient     FailureClass = "transient"
	FailureRateLimited   FailureClass = "rate_limited"
	FailureAuthRejected  FailureClass = "auth_rejected"
	FailureQuotaExceeded FailureClass = "quota_exhausted"
	FailureUnknown       FailureClass = "unknown"
)

// Credential is the pool's unit of record: a refresh-token-centered identity
// used to authenticate against the upstream, plus the runtime state needed
// to select, refresh, and retire it safely.
//
// Credential values are only ever mutated while the owning Store holds its
// exclusive lock; callers outside the Store operate on Clone()s. There is
// deliberately no per-credential lock: the pool is small (tens to low
// hundreds of entries) and contention is dominated by upstream I/O, not by
// critical-section length, per the concurrency model this pool follows.
type Credential struct {
	ID           int
	RefreshToken string
	AccessToken  string
	ExpiresAt    time.Time

	AuthMethod   AuthMethod
	ClientID     string
	ClientSecret string

	ProfileArn string
	Region     string
	MachineID  string
	ProxyURL   string

	Priority int
	Disabled bool

	FailureCount int
	SuccessCount int
	LastUsedAt   time.Time

	CooldownUntil time.Time

	SubscriptionTitle string
	Email             string
	Remaining         float64
	UsageLimit        float64
	UsagePercentage   float64

	// Supplemented observability fields (additive, never patched by Admin Facade).
	FailureReason string
	CreatedAt     time.Time
	LastRefreshAt time.Time

	// failureStreak counts the trailing run of consecutive failures since the
	// last success or the last streak-triggered cooldown; it backs the
	// streak cooldown rule in the failure policy and is not persisted, so it
	// starts at zero whenever the pool is loaded from disk.
	failureStreak int
}

// Clone returns a value copy safe to hand to callers outside the Store lock.
// Callers must already hold the Store lock (or otherwise know c cannot be
// concurrently mutated) before calling Clone.
func (c *Credential) Clone() *Credential {
	clone := *c
	return &clone
}

// IsEligible reports whether the credential may currently be picked by a
// Selector policy: not disabled, and not in an active cooldown window.
// Callers must hold the Store lock.
func (c *Credential) IsEligible(now time.Time) bool {
	if c.Disabled {
		return false
	}
	if !c.CooldownUntil.IsZero() && c.CooldownUntil.After(now) {
		return false
	}
	return true
}

// NeedsRefresh reports whether the cached access token is missing, expired,
// or within the refresh-ahead safety window. Callers must hold the Store
// lock or operate on a Clone.
func (c *Credential) NeedsRefresh(now time.Time, ahead time.Duration) bool {
	if c.AccessToken == "" {
		return true
	}
	if c.ExpiresAt.IsZero() {
		return true
	}
	return !c.ExpiresAt.After(now.Add(ahead))
}

// Status is the public projection of a Credential returned by the Admin
// Facade's list and cloud-pass status operations: no refreshToken, no
// clientSecret.
type Status struct {
	ID                int        `json:"id"`
	AuthMethod        AuthMethod `json:"authMethod"`
	ClientID          string     `json:"clientId,omitempty"`
	ProfileArn        string     `json:"profileArn,omitempty"`
	Region            string     `json:"region"`
	MachineID         string     `json:"machineId"`
	ProxyURL          string     `json:"proxyUrl,omitempty"`
	Priority          int        `json:"priority"`
	Disabled          bool       `json:"disabled"`
	FailureCount      int        `json:"failureCount"`
	SuccessCount      int        `json:"successCount"`
	LastUsedAt        *time.Time `json:"lastUsedAt,omitempty"`
	CooldownUntil     *time.Time `json:"cooldownUntil,omitempty"`
	SubscriptionTitle string     `json:"subscriptionTitle,omitempty"`
	Email             string     `json:"email,omitempty"`
	Remaining         float64    `json:"remaining,omitempty"`
	UsageLimit        float64    `json:"usageLimit,omitempty"`
	UsagePercentage   float64    `json:"usagePercentage,omitempty"`
	FailureReason     string     `json:"failureReason,omitempty"`
	HasAccessToken    bool       `json:"hasAccessToken"`
	ExpiresAt         *time.Time `json:"expiresAt,omitempty"`
}

// ToStatus projects a Credential into its admin-facing public view. Callers
// must hold the Store lock or operate on a Clone.
func (c *Credential) ToStatus() Status {
	s := Status{
		ID:                c.ID,
		AuthMethod:        c.AuthMethod,
		ClientID:          c.ClientID,
		ProfileArn:        c.ProfileArn,
		Region:            c.Region,
		MachineID:         c.MachineID,
		ProxyURL:          c.ProxyURL,
		Priority:          c.Priority,
		Disabled:          c.Disabled,
		FailureCount:      c.FailureCount,
		SuccessCount:      c.SuccessCount,
		SubscriptionTitle: c.SubscriptionTitle,
		Email:             c.Email,
		Remaining:         c.Remaining,
		UsageLimit:        c.UsageLimit,
		UsagePercentage:   c.UsagePercentage,
		FailureReason:     c.FailureReason,
		HasAccessToken:    c.AccessToken != "",
	}
	if !c.LastUsedAt.IsZero() {
		t := c.LastUsedAt
		s.LastUsedAt = &t
	}
	if !c.CooldownUntil.IsZero() {
		t := c.CooldownUntil
		s.CooldownUntil = &t
	}
	if !c.ExpiresAt.IsZero() {
		t := c.ExpiresAt
		s.ExpiresAt = &t
	}
	return s
}

// record is the on-disk JSON shape for a Credential, field names matching
// the persisted-file convention (lowerCamelCase, not Go-exported names).
type record struct {
	ID                int        `json:"id"`
	RefreshToken      string     `json:"refreshToken"`
	AccessToken       string     `json:"accessToken,omitempty"`
	ExpiresAt         *time.Time `json:"expiresAt,omitempty"`
	AuthMethod        AuthMethod `json:"authMethod"`
	ClientID          string     `json:"clientId,omitempty"`
	ClientSecret      string     `json:"clientSecret,omitempty"`
	ProfileArn        string     `json:"profileArn,omitempty"`
	Region            string     `json:"region"`
	MachineID         string     `json:"machineId"`
	ProxyURL          string     `json:"proxyUrl,omitempty"`
	Priority          int        `json:"priority"`
	Disabled          bool       `json:"disabled"`
	FailureCount      int        `json:"failureCount"`
	SuccessCount      int        `json:"successCount"`
	LastUsedAt        *time.Time `json:"lastUsedAt,omitempty"`
	CooldownUntil     *time.Time `json:"cooldownUntil,omitempty"`
	SubscriptionTitle string     `json:"subscriptionTitle,omitempty"`
	Email             string     `json:"email,omitempty"`
	Remaining         float64    `json:"remaining,omitempty"`
	UsageLimit        float64    `json:"usageLimit,omitempty"`
	UsagePercentage   float64    `json:"usagePercentage,omitempty"`
	FailureReason     string     `json:"failureReason,omitempty"`
	CreatedAt         *time.Time `json:"createdAt,omitempty"`
	LastRefreshAt     *time.Time `json:"lastRefreshAt,omitempty"`
}

func toRecord(c *Credential) record {
	r := record{
		ID:                c.ID,
		RefreshToken:      c.RefreshToken,
		AccessToken:       c.AccessToken,
		AuthMethod:        c.AuthMethod,
		ClientID:          c.ClientID,
		ClientSecret:      c.ClientSecret,
		ProfileArn:        c.ProfileArn,
		Region:            c.Region,
		MachineID:         c.MachineID,
		ProxyURL:          c.ProxyURL,
		Priority:          c.Priority,
		Disabled:          c.Disabled,
		FailureCount:      c.FailureCount,
		SuccessCount:      c.SuccessCount,
		SubscriptionTitle: c.SubscriptionTitle,
		Email:             c.Email,
		Remaining:         c.Remaining,
		UsageLimit:        c.UsageLimit,
		UsagePercentage:   c.UsagePercentage,
		FailureReason:     c.FailureReason,
	}
	if !c.ExpiresAt.IsZero() {
		t := c.ExpiresAt
		r.ExpiresAt = &t
	}
	if !c.LastUsedAt.IsZero() {
		t := c.LastUsedAt
		r.LastUsedAt = &t
	}
	if !c.CooldownUntil.IsZero() {
		t := c.CooldownUntil
		r.CooldownUntil = &t
	}
	if !c.CreatedAt.IsZero() {
		t := c.CreatedAt
		r.CreatedAt = &t
	}
	if !c.LastRefreshAt.IsZero() {
		t := c.LastRefreshAt
		r.LastRefreshAt = &t
	}
	return r
}

func fromRecord(r record) *Credential {
	c := &Credential{
		ID:                r.ID,
		RefreshToken:      r.RefreshToken,
		AccessToken:       r.AccessToken,
		AuthMethod:        r.AuthMethod,
		ClientID:          r.ClientID,
		ClientSecret:      r.ClientSecret,
		ProfileArn:        r.ProfileArn,
		Region:            r.Region,
		MachineID:         r.MachineID,
		ProxyURL:          r.ProxyURL,
		Priority:          r.Priority,
		Disabled:          r.Disabled,
		FailureCount:      r.FailureCount,
		SuccessCount:      r.SuccessCount,
		SubscriptionTitle: r.SubscriptionTitle,
		Email:             r.Email,
		Remaining:         r.Remaining,
		UsageLimit:        r.UsageLimit,
		UsagePercentage:   r.UsagePercentage,
		FailureReason:     r.FailureReason,
	}
	if r.ExpiresAt != nil {
		c.ExpiresAt = *r.ExpiresAt
	}
	if r.LastUsedAt != nil {
		c.LastUsedAt = *r.LastUsedAt
	}
	if r.CooldownUntil != nil {
		c.CooldownUntil = *r.CooldownUntil
	}
	if r.CreatedAt != nil {
		c.CreatedAt = *r.CreatedAt
	}
	if r.LastRefreshAt != nil {
		c.LastRefreshAt = *r.LastRefreshAt
	}
	if c.Region == "" {
		c.Region = defaultRegion
	}
	return c
}

package credential

import (
	"context"
	"time"
)

// Admin is the transactional surface the admin HTTP binary calls into. It
// owns no state of its own — every operation is a thin pass-through to the
// Store, Selector, and Refresh Coordinator — but it is the one place that
// assembles them into the admin API's full operation set.
type Admin struct {
	store   *Store
	sel     *Selector
	refresh *RefreshCoordinator
}

// NewAdmin wires an Admin Facade over an already-constructed Store,
// Selector, and Refresh Coordinator.
func NewAdmin(store *Store, sel *Selector, refresh *RefreshCoordinator) *Admin {
	return &Admin{store: store, sel: sel, refresh: refresh}
}

// List returns every credential's public projection.
func (a *Admin) List() []Status {
	return a.store.List()
}

// Add validates and commits a new credential, proving the refresh token
// works before it is ever visible to a Selector.
func (a *Admin) Add(ctx context.Context, req NewCredentialRequest) (int, error) {
	return a.store.Add(ctx, req, a.refresh)
}

// Delete removes a disabled credential; see Store.Delete for the safety rail.
func (a *Admin) Delete(id int) error {
	return a.store.Delete(id)
}

// SetDisabled toggles a credential's disabled flag.
func (a *Admin) SetDisabled(id int, disabled bool) error {
	return a.store.SetDisabled(id, disabled)
}

// SetPriority patches a credential's selection priority.
func (a *Admin) SetPriority(id, priority int) error {
	return a.store.SetPriority(id, priority)
}

// SetProxy patches a credential's outbound proxy URL; nil clears it.
func (a *Admin) SetProxy(id int, proxyURL *string) error {
	return a.store.SetProxy(id, proxyURL)
}

// ResetFailure clears a credential's failure counter, streak, and cooldown.
func (a *Admin) ResetFailure(id int) error {
	return a.store.ResetFailure(id)
}

// BalanceResult is what balance(id) reports: the live subscription/profile
// fields fetched from upstream, refreshed as a side effect of the call.
type BalanceResult struct {
	SubscriptionTitle string    `json:"subscriptionTitle,omitempty"`
	Email             string    `json:"email,omitempty"`
	Remaining         float64   `json:"remaining,omitempty"`
	UsageLimit        float64   `json:"usageLimit,omitempty"`
	UsagePercentage   float64   `json:"usagePercentage,omitempty"`
	ExpiresAt         time.Time `json:"expiresAt,omitempty"`
}

// Balance forces a fresh access token for id and returns the enriched
// profile fields the upstream's profile endpoint reports, piggybacking on
// the opportunistic enrichment call the refresh path already makes.
func (a *Admin) Balance(ctx context.Context, id int) (BalanceResult, error) {
	if err := a.refresh.ForceRefresh(ctx, id); err != nil {
		return BalanceResult{}, err
	}
	cred, err := a.store.Get(id)
	if err != nil {
		return BalanceResult{}, err
	}
	return BalanceResult{
		SubscriptionTitle: cred.SubscriptionTitle,
		Email:             cred.Email,
		Remaining:         cred.Remaining,
		UsageLimit:        cred.UsageLimit,
		UsagePercentage:   cred.UsagePercentage,
		ExpiresAt:         cred.ExpiresAt,
	}, nil
}

// GetMode returns the Selector's currently configured policy.
func (a *Admin) GetMode() Policy {
	return a.sel.Mode()
}

// SetMode switches the Selector's policy at runtime.
func (a *Admin) SetMode(mode Policy) {
	a.sel.SetMode(mode)
}

// CloudPassStatus reports the pinned cloud-pass credential id (0 if none)
// and, when set, that credential's public projection.
type CloudPassStatus struct {
	CredentialID int     `json:"credentialId"`
	Credential   *Status `json:"credential,omitempty"`
}

// CloudPassStatus reports the current cloud-pass pin.
func (a *Admin) CloudPassStatus() CloudPassStatus {
	id := a.sel.CloudPassID()
	out := CloudPassStatus{CredentialID: id}
	if id == 0 {
		return out
	}
	cred, err := a.store.Get(id)
	if err == nil {
		s := cred.ToStatus()
		out.Credential = &s
	}
	return out
}

// RefreshCloudPass forces a refresh of the pinned cloud-pass credential.
// It fails with NotFound if no credential is currently pinned.
func (a *Admin) RefreshCloudPass(ctx context.Context) error {
	id := a.sel.CloudPassID()
	if id == 0 {
		return errNotFound(0)
	}
	return a.refresh.ForceRefresh(ctx, id)
}

package credential

import (
	"context"
	"sort"
	"sync"
	"time"

	"credpool-go/internal/events"

	log "github.com/sirupsen/logrus"
)

// NewCredentialRequest is the input to Store.Add: everything an operator or
// the license-refresher helper supplies about a not-yet-onboarded
// credential. Fields the Store derives itself (id, region, machineId when
// absent) are left zero.
type NewCredentialRequest struct {
	RefreshToken string
	AuthMethod   AuthMethod
	ClientID     string
	ClientSecret string
	ProfileArn   string
	Region       string
	MachineID    string
	ProxyURL     string
	Priority     int
}

// Refresher is the subset of the Refresh Coordinator that the Store calls
// synchronously during Add to validate a new refresh token before
// committing it to the pool.
type Refresher interface {
	RefreshNow(ctx context.Context, cred *Credential) error
}

// Store is the sole authoritative in-memory credential collection, the
// sole place pool invariants are enforced, and the trigger for every
// persisted write.
type Store struct {
	mu          sync.RWMutex
	credentials []*Credential
	byID        map[int]*Credential

	persist   *persister
	publisher events.Publisher
	policy    FailurePolicyConfig
}

// NewStore constructs an empty Store backed by the given persisted file
// path and failure-policy thresholds.
func NewStore(path string, policy FailurePolicyConfig) *Store {
	return &Store{
		byID:    make(map[int]*Credential),
		persist: newPersister(path),
		policy:  policy,
	}
}

// SetEventPublisher wires the hub the Store announces mutations onto.
func (s *Store) SetEventPublisher(p events.Publisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publisher = p
}

// Load reads the persisted file and replaces the in-memory pool wholesale.
// Called at startup, and again by Watch after the file changes on disk.
func (s *Store) Load() error {
	creds, err := s.persist.load()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.credentials = creds
	s.byID = make(map[int]*Credential, len(creds))
	for _, c := range creds {
		s.byID[c.ID] = c
	}
	s.mu.Unlock()

	log.WithField("count", len(creds)).Info("credential store: loaded pool from disk")
	s.publish(events.TopicCredentialsSynced, map[string]any{"count": len(creds)})
	return nil
}

// List returns the public projection of every credential, ordered by id.
func (s *Store) List() []Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Status, 0, len(s.credentials))
	for _, c := range s.credentials {
		out = append(out, c.ToStatus())
	}
	return out
}

// Get returns a clone of the credential with the given id.
func (s *Store) Get(id int) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	if !ok {
		return nil, errNotFound(id)
	}
	return c.Clone(), nil
}

// Snapshot returns clones of every credential currently in the pool.
func (s *Store) Snapshot() []*Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Credential, 0, len(s.credentials))
	for _, c := range s.credentials {
		out = append(out, c.Clone())
	}
	return out
}

func (s *Store) nextIDLocked() int {
	max := 0
	for _, c := range s.credentials {
		if c.ID > max {
			max = c.ID
		}
	}
	return max + 1
}

// Add validates and commits a new credential:
// duplicate-refreshToken rejection, region/machineId derivation, a
// synchronous refresh to prove the token works before the id is allocated.
func (s *Store) Add(ctx context.Context, req NewCredentialRequest, refresher Refresher) (int, error) {
	s.mu.Lock()
	for _, c := range s.credentials {
		if c.RefreshToken == req.RefreshToken {
			s.mu.Unlock()
			return 0, errConflict("duplicate refreshToken")
		}
	}
	s.mu.Unlock()

	cand := &Credential{
		RefreshToken: req.RefreshToken,
		AuthMethod:   req.AuthMethod,
		ClientID:     req.ClientID,
		ClientSecret: req.ClientSecret,
		ProfileArn:   req.ProfileArn,
		ProxyURL:     req.ProxyURL,
		Priority:     req.Priority,
		Region:       deriveRegion(req.ProfileArn, req.Region),
		MachineID:    req.MachineID,
		CreatedAt:    time.Now(),
	}
	if cand.MachineID == "" {
		cand.MachineID = deriveMachineID()
	}

	if refresher != nil {
		if err := refresher.RefreshNow(ctx, cand); err != nil {
			return 0, err
		}
	}

	s.mu.Lock()
	// Re-check under the exclusive lock: another Add could have raced us
	// to the same refreshToken while we were off doing network I/O.
	for _, c := range s.credentials {
		if c.RefreshToken == req.RefreshToken {
			s.mu.Unlock()
			return 0, errConflict("duplicate refreshToken")
		}
	}
	cand.ID = s.nextIDLocked()
	s.credentials = append(s.credentials, cand)
	s.byID[cand.ID] = cand
	snapshot := s.cloneAllLocked()
	s.mu.Unlock()

	s.persist.save(snapshot)
	s.publish(events.TopicCredentialChanged, map[string]any{"op": "add", "id": cand.ID})
	log.WithField("id", cand.ID).Info("credential store: added credential")
	return cand.ID, nil
}

// Delete removes a credential. Safety rail: only a disabled credential may
// be deleted.
func (s *Store) Delete(id int) error {
	s.mu.Lock()
	c, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return errNotFound(id)
	}
	if !c.Disabled {
		s.mu.Unlock()
		return errPrecondition("must disable first")
	}
	s.credentials = removeByID(s.credentials, id)
	delete(s.byID, id)
	snapshot := s.cloneAllLocked()
	s.mu.Unlock()

	s.persist.save(snapshot)
	s.publish(events.TopicCredentialChanged, map[string]any{"op": "delete", "id": id})
	log.WithField("id", id).Info("credential store: deleted credential")
	return nil
}

func removeByID(creds []*Credential, id int) []*Credential {
	out := make([]*Credential, 0, len(creds))
	for _, c := range creds {
		if c.ID != id {
			out = append(out, c)
		}
	}
	return out
}

// SetDisabled patches the disabled flag. Setting disabled=true
// clears cooldownUntil; setting it false does not reset failureCount.
func (s *Store) SetDisabled(id int, disabled bool) error {
	return s.mutate(id, "set_disabled", func(c *Credential) {
		c.Disabled = disabled
		if disabled {
			c.CooldownUntil = time.Time{}
		}
	})
}

// SetPriority patches the priority field.
func (s *Store) SetPriority(id, priority int) error {
	return s.mutate(id, "set_priority", func(c *Credential) {
		c.Priority = priority
	})
}

// SetProxy patches the per-credential outbound proxy URL; nil clears it.
func (s *Store) SetProxy(id int, proxyURL *string) error {
	return s.mutate(id, "set_proxy", func(c *Credential) {
		if proxyURL == nil {
			c.ProxyURL = ""
		} else {
			c.ProxyURL = *proxyURL
		}
	})
}

// ResetFailure clears the failure counter, cooldown, and failure streak.
// It does not re-enable an auto-disabled credential: the two operations
// are kept separate so an operator can silence a credential's failure
// streak without also flipping it back into rotation.
func (s *Store) ResetFailure(id int) error {
	return s.mutate(id, "reset_failure", func(c *Credential) {
		c.FailureCount = 0
		c.CooldownUntil = time.Time{}
		c.failureStreak = 0
		c.FailureReason = ""
	})
}

// ApplyRefreshSuccess commits the result of a successful upstream refresh.
func (s *Store) ApplyRefreshSuccess(id int, accessToken, newRefreshToken string, expiresAt time.Time) error {
	return s.mutate(id, "refresh_success", func(c *Credential) {
		c.AccessToken = accessToken
		if newRefreshToken != "" {
			c.RefreshToken = newRefreshToken
		}
		c.ExpiresAt = expiresAt
		c.LastRefreshAt = time.Now()
	})
}

// ApplyEnrichment stashes opportunistically fetched profile fields; a
// failure to fetch them is never surfaced, so this is best-effort only.
func (s *Store) ApplyEnrichment(id int, subscriptionTitle, email string, remaining, usageLimit, usagePercentage float64) {
	_ = s.mutate(id, "enrich", func(c *Credential) {
		if subscriptionTitle != "" {
			c.SubscriptionTitle = subscriptionTitle
		}
		if email != "" {
			c.Email = email
		}
		c.Remaining = remaining
		c.UsageLimit = usageLimit
		c.UsagePercentage = usagePercentage
	})
}

// ApplyRefreshRejected marks a credential permanently disabled because the
// upstream rejected the refresh token outright (invalid_grant or similar).
func (s *Store) ApplyRefreshRejected(id int, reason string) error {
	return s.mutate(id, "refresh_rejected", func(c *Credential) {
		c.Disabled = true
		c.CooldownUntil = time.Time{}
		c.FailureReason = reason
		c.FailureCount++
	})
}

// ReportSuccess is the Failure Policy's report_success(id) operation.
func (s *Store) ReportSuccess(id int) error {
	return s.mutate(id, "report_success", func(c *Credential) {
		c.SuccessCount++
		c.failureStreak = 0
	})
}

// ReportFailure is the Failure Policy's report_failure(id, classification)
// operation; see failure_policy.go for the per-class effects applied here.
func (s *Store) ReportFailure(id int, class FailureClass) error {
	return s.mutate(id, "report_failure", func(c *Credential) {
		applyFailure(c, class, s.policy)
	})
}

// mutate looks up a credential, applies fn under the store's exclusive
// lock, persists the post-image, and announces the change. fn must not
// perform I/O: it runs while the lock is held.
func (s *Store) mutate(id int, op string, fn func(*Credential)) error {
	s.mu.Lock()
	c, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return errNotFound(id)
	}
	fn(c)
	snapshot := s.cloneAllLocked()
	s.mu.Unlock()

	s.persist.save(snapshot)
	s.publish(events.TopicCredentialChanged, map[string]any{"op": op, "id": id})
	return nil
}

func (s *Store) cloneAllLocked() []*Credential {
	out := make([]*Credential, len(s.credentials))
	for i, c := range s.credentials {
		out[i] = c.Clone()
	}
	return out
}

// eligibleLocked returns the credentials currently eligible for selection,
// in stable id order. Callers must hold s.mu.
func (s *Store) eligibleLocked(now time.Time) []*Credential {
	out := make([]*Credential, 0, len(s.credentials))
	for _, c := range s.credentials {
		if c.IsEligible(now) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// pick runs choose over the current eligible set and, if it returns a
// credential, stamps lastUsedAt=now on the canonical record under the
// store's exclusive lock so two concurrent picks can never both choose the
// same "oldest" record.
func (s *Store) pick(now time.Time, choose func([]*Credential) *Credential) (int, error) {
	s.mu.Lock()
	eligible := s.eligibleLocked(now)
	chosen := choose(eligible)
	if chosen == nil {
		s.mu.Unlock()
		return 0, errNoEligibleCredential()
	}
	chosen.LastUsedAt = now
	snapshot := s.cloneAllLocked()
	s.mu.Unlock()

	s.persist.save(snapshot)
	return chosen.ID, nil
}

func (s *Store) publish(topic string, payload any) {
	s.mu.RLock()
	p := s.publisher
	s.mu.RUnlock()
	if p == nil {
		return
	}
	p.Publish(context.Background(), topic, payload, nil)
}

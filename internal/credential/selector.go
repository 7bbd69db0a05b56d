package credential

import (
	"sort"
	"sync"
	"time"
)

// Policy names the Selector's rule for choosing among eligible credentials.
type Policy string

const (
	PolicyPriorityFirst Policy = "priority-first"
	PolicyRoundRobin    Policy = "round-robin"
	PolicyLeastFailures Policy = "least-failures"
)

func (p Policy) normalized() Policy {
	switch p {
	case PolicyRoundRobin, PolicyLeastFailures:
		return p
	default:
		return PolicyPriorityFirst
	}
}

// Selector chooses one eligible credential per downstream request
// according to the configured, runtime-switchable policy, with an
// optional cloud-pass pinning override.
type Selector struct {
	store *Store

	mu        sync.RWMutex
	mode      Policy
	cloudPass int
}

// NewSelector constructs a Selector over store, defaulting to
// priority-first unless mode names one of the other two policies.
func NewSelector(store *Store, mode Policy, cloudPassID int) *Selector {
	return &Selector{
		store:     store,
		mode:      mode.normalized(),
		cloudPass: cloudPassID,
	}
}

// Mode returns the currently configured policy.
func (sel *Selector) Mode() Policy {
	sel.mu.RLock()
	defer sel.mu.RUnlock()
	return sel.mode
}

// SetMode switches the policy at runtime (Admin Facade set_mode).
func (sel *Selector) SetMode(mode Policy) {
	sel.mu.Lock()
	defer sel.mu.Unlock()
	sel.mode = mode.normalized()
}

// CloudPassID returns the pinned credential id, or 0 if none is configured.
func (sel *Selector) CloudPassID() int {
	sel.mu.RLock()
	defer sel.mu.RUnlock()
	return sel.cloudPass
}

// SetCloudPassID changes the pinned credential id; 0 disables pinning.
func (sel *Selector) SetCloudPassID(id int) {
	sel.mu.Lock()
	defer sel.mu.Unlock()
	sel.cloudPass = id
}

// Pick chooses one eligible credential id, or fails with
// NoEligibleCredential. The cloud-pass credential, if pinned and eligible,
// always wins; otherwise the configured policy runs over the remainder.
func (sel *Selector) Pick() (int, error) {
	mode := sel.Mode()
	cloudPass := sel.CloudPassID()

	return sel.store.pick(time.Now(), func(eligible []*Credential) *Credential {
		if cloudPass != 0 {
			for _, c := range eligible {
				if c.ID == cloudPass {
					return c
				}
			}
		}
		return choose(mode, eligible)
	})
}

// choose applies the named policy over an already-eligible, id-ordered
// slice. It must not mutate its input; Store.pick owns committing the
// result's lastUsedAt under the lock.
func choose(mode Policy, eligible []*Credential) *Credential {
	if len(eligible) == 0 {
		return nil
	}

	switch mode {
	case PolicyRoundRobin:
		best := eligible[0]
		for _, c := range eligible[1:] {
			if c.LastUsedAt.Before(best.LastUsedAt) {
				best = c
			}
		}
		return best

	case PolicyLeastFailures:
		ranked := append([]*Credential(nil), eligible...)
		sort.SliceStable(ranked, func(i, j int) bool {
			a, b := ranked[i], ranked[j]
			if a.FailureCount != b.FailureCount {
				return a.FailureCount < b.FailureCount
			}
			if !a.LastUsedAt.Equal(b.LastUsedAt) {
				return a.LastUsedAt.Before(b.LastUsedAt)
			}
			return a.ID < b.ID
		})
		return ranked[0]

	default: // PolicyPriorityFirst
		lowestPriority := eligible[0].Priority
		for _, c := range eligible[1:] {
			if c.Priority < lowestPriority {
				lowestPriority = c.Priority
			}
		}
		var best *Credential
		for _, c := range eligible {
			if c.Priority != lowestPriority {
				continue
			}
			if best == nil || c.LastUsedAt.Before(best.LastUsedAt) ||
				(c.LastUsedAt.Equal(best.LastUsedAt) && c.ID < best.ID) {
				best = c
			}
		}
		return best
	}
}

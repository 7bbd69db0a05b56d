package credential

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func addCred(t *testing.T, s *Store, token string, priority int) int {
	t.Helper()
	id, err := s.Add(context.Background(), NewCredentialRequest{
		RefreshToken: token,
		AuthMethod:   AuthMethodIDC,
		Priority:     priority,
	}, &stubRefresher{accessToken: "tok", expiresAt: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	return id
}

func TestSelectorPriorityFirstPicksLowestPriorityThenOldestUsed(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "c.json"), DefaultFailurePolicyConfig)
	require.NoError(t, s.Load())

	low := addCred(t, s, "r1", 1)
	addCred(t, s, "r2", 5)

	sel := NewSelector(s, PolicyPriorityFirst, 0)
	id, err := sel.Pick()
	require.NoError(t, err)
	require.Equal(t, low, id)
}

func TestSelectorRoundRobinPicksLeastRecentlyUsed(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "c.json"), DefaultFailurePolicyConfig)
	require.NoError(t, s.Load())

	id1 := addCred(t, s, "r1", 1)
	id2 := addCred(t, s, "r2", 1)

	sel := NewSelector(s, PolicyRoundRobin, 0)

	first, err := sel.Pick()
	require.NoError(t, err)

	second, err := sel.Pick()
	require.NoError(t, err)
	require.NotEqual(t, first, second)
	require.ElementsMatch(t, []int{id1, id2}, []int{first, second})
}

func TestSelectorLeastFailuresPrefersFewerFailures(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "c.json"), DefaultFailurePolicyConfig)
	require.NoError(t, s.Load())

	noisy := addCred(t, s, "r1", 1)
	quiet := addCred(t, s, "r2", 1)
	require.NoError(t, s.ReportFailure(noisy, FailureTransient))

	sel := NewSelector(s, PolicyLeastFailures, 0)
	id, err := sel.Pick()
	require.NoError(t, err)
	require.Equal(t, quiet, id)
}

func TestSelectorCloudPassPinningOverridesPolicy(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "c.json"), DefaultFailurePolicyConfig)
	require.NoError(t, s.Load())

	addCred(t, s, "r1", 1)
	pinned := addCred(t, s, "r2", 9)

	sel := NewSelector(s, PolicyPriorityFirst, pinned)
	id, err := sel.Pick()
	require.NoError(t, err)
	require.Equal(t, pinned, id)
}

func TestSelectorPickFailsWhenNothingEligible(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "c.json"), DefaultFailurePolicyConfig)
	require.NoError(t, s.Load())

	id := addCred(t, s, "r1", 1)
	require.NoError(t, s.SetDisabled(id, true))

	sel := NewSelector(s, PolicyPriorityFirst, 0)
	_, err := sel.Pick()
	require.Error(t, err)
	cerr, ok := AsError(err)
	require.True(t, ok)
	require.Equal(t, KindNoEligibleCredential, cerr.Kind)
}

package credential

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveRegionFromProfileArnFourthSegment(t *testing.T) {
	region := deriveRegion("arn:aws:sso:us-west-2:123456789012:profile/foo", "")
	require.Equal(t, "us-west-2", region)
}

func TestDeriveRegionFallsBackToExplicitRegion(t *testing.T) {
	region := deriveRegion("", "eu-central-1")
	require.Equal(t, "eu-central-1", region)
}

func TestDeriveRegionFallsBackToDefault(t *testing.T) {
	require.Equal(t, defaultRegion, deriveRegion("", ""))
}

func TestDeriveRegionIgnoresShortArnAndFallsBack(t *testing.T) {
	region := deriveRegion("arn:aws:sso", "us-west-2")
	require.Equal(t, "us-west-2", region)
}

func TestDeriveMachineIDIsStableAcrossCalls(t *testing.T) {
	id1 := deriveMachineID()
	id2 := deriveMachineID()
	require.Equal(t, id1, id2)
	require.Len(t, id1, 64)
}

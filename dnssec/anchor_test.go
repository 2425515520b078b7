package dnssec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaultRootAnchorSucceeds(t *testing.T) {
	s := NewTrustAnchorStore()
	require.NoError(t, s.LoadDefaultRootAnchor())
	require.Len(t, s.Anchors("."), 1)
}

// TestLoadDefaultRootAnchorMatchesRealRootKSK confirms the compiled-in
// digest actually authenticates IANA's 2017 root KSK, not just that it
// decodes as valid hex.
func TestLoadDefaultRootAnchorMatchesRealRootKSK(t *testing.T) {
	s := NewTrustAnchorStore()
	require.NoError(t, s.LoadDefaultRootAnchor())

	key := rootKSK2017(t)
	require.True(t, s.VerifyAgainstAnchor(".", key))
}

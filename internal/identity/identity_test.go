package identity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompute_StableAcrossCaseAndWhitespace(t *testing.T) {
	t.Parallel()

	a := Compute("4", "Acme Inc", "2025-03-03")
	b := Compute("4", "  acme   inc ", "2025-03-03")
	require.Equal(t, a, b)
	require.Len(t, a, TokenLength)
}

func TestCompute_DiffersOnAnyInput(t *testing.T) {
	t.Parallel()

	base := Compute("4", "Acme Inc", "2025-03-03")
	require.NotEqual(t, base, Compute("5", "Acme Inc", "2025-03-03"))
	require.NotEqual(t, base, Compute("4", "Acme Corp", "2025-03-03"))
	require.NotEqual(t, base, Compute("4", "Acme Inc", "2025-03-04"))
}

func TestSyntheticKey(t *testing.T) {
	t.Parallel()

	token := Compute("ag-ca", "Acme Inc", "2025-03-03")
	key := SyntheticKey("ag-ca", token)
	require.Equal(t, "synthetic://ag-ca/"+token, key)
}

package featureflag

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFeatureFlag(t *testing.T) {
	f := New([]string{string(FlagDisableCatalog)})

	t.Run("run if enabled", func(t *testing.T) {
		var runCatalog bool
		f.IfSet(FlagDisableCatalog, func() {
			runCatalog = true
		})
		require.True(t, runCatalog)

		var runDedup bool
		f.IfSet(FlagDisableContactDedup, func() {
			runDedup = true
		})
		require.False(t, runDedup)
	})

	t.Run("run if disabled", func(t *testing.T) {
		var runCatalog bool
		f.IfNotSet(FlagDisableCatalog, func() {
			runCatalog = true
		})
		require.False(t, runCatalog)

		var runDedup bool
		f.IfNotSet(FlagDisableContactDedup, func() {
			runDedup = true
		})
		require.True(t, runDedup)
	})
}

func TestFeatureFlagNormalization(t *testing.T) {
	f := New([]string{" disable_contact_dedup", "", "DISABLE_CATALOG "})
	require.True(t, f.IsSet(FlagDisableContactDedup))
	require.True(t, f.IsSet(FlagDisableCatalog))
	require.False(t, f.IsSet(FlagDisableAsyncGeneration))
	require.Equal(t, []string{"DISABLE_CATALOG", "DISABLE_CONTACT_DEDUP"}, f.List())
}

func TestFeatureFlagUnknown(t *testing.T) {
	f := New([]string{"DISABLE_CATALOG", "DISABLE_SESSION_STATE"})
	require.Equal(t, []string{"DISABLE_SESSION_STATE"}, f.Unknown())
	require.Empty(t, New(nil).Unknown())
}

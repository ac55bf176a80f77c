package coord

import (
	"testing"

	"github.com/stretchr/testify/require"

	"umd/arch"
)

func TestTranslateRoundTripAcrossSystems(t *testing.T) {
	mgr, err := NewCoordinateManager(arch.For(arch.WormholeB0), HarvestingMasks{})
	require.NoError(t, err)

	for _, c := range mgr.CoresOf(Tensix, false) {
		noc1, err := mgr.Translate(c, NOC1)
		require.NoError(t, err)
		back, err := mgr.Translate(noc1, NOC0)
		require.NoError(t, err)
		require.Equal(t, c, back, "NOC0 -> NOC1 -> NOC0 must be the identity")

		translated, err := mgr.Translate(c, Translated)
		require.NoError(t, err)
		back2, err := mgr.Translate(translated, NOC0)
		require.NoError(t, err)
		require.Equal(t, c, back2, "NOC0 -> Translated -> NOC0 must be the identity")
	}
}

func TestHarvestedTensixRowFailsLogicalAndTranslated(t *testing.T) {
	// Harvest the first surviving tensix row.
	mgr, err := NewCoordinateManager(arch.For(arch.WormholeB0), HarvestingMasks{Tensix: 1})
	require.NoError(t, err)

	harvested := mgr.CoresOf(Tensix, true)
	var found bool
	for _, c := range harvested {
		if mgr.IsHarvested(Tensix, c.X, c.Y) {
			found = true
			_, err := mgr.Translate(c, Logical)
			require.Error(t, err)
			_, err = mgr.Translate(c, Translated)
			require.Error(t, err)

			// NOC0 and NOC1 remain defined for a harvested physical core.
			_, err = mgr.Translate(c, NOC0)
			require.NoError(t, err)
			_, err = mgr.Translate(c, NOC1)
			require.NoError(t, err)
		}
	}
	require.True(t, found, "expected at least one harvested tensix core")
}

func TestLogicalIndicesAreInjectiveOverSurvivors(t *testing.T) {
	mgr, err := NewCoordinateManager(arch.For(arch.Blackhole), HarvestingMasks{Tensix: 0b101})
	require.NoError(t, err)

	seen := map[int]bool{}
	for _, c := range mgr.CoresOf(Tensix, false) {
		lc, err := mgr.Translate(c, Logical)
		require.NoError(t, err)
		require.False(t, seen[lc.X], "logical index %d reused", lc.X)
		seen[lc.X] = true
	}
}

func TestDramHarvestingInvalidWhenMultipleBanks(t *testing.T) {
	_, err := NewCoordinateManager(arch.For(arch.WormholeB0), HarvestingMasks{Dram: 0b011})
	require.Error(t, err)
}

func TestSocDescriptorRouterOnlyAfterPcieHarvest(t *testing.T) {
	desc, err := NewSocDescriptor(arch.Blackhole, BoardP150, HarvestingMasks{Pcie: 0b1})
	require.NoError(t, err)

	core, err := desc.PcieCore()
	require.NoError(t, err)
	require.Equal(t, Pcie, core.Type)

	router := desc.RouterOnlyCores()
	require.Len(t, router, 1)
}

func TestSocDescriptorYAMLRoundTrip(t *testing.T) {
	desc, err := NewSocDescriptor(arch.WormholeB0, BoardN300, HarvestingMasks{Tensix: 0b1})
	require.NoError(t, err)

	data, err := desc.MarshalYAML()
	require.NoError(t, err)

	back, err := UnmarshalSocDescriptor(data)
	require.NoError(t, err)
	require.Equal(t, desc.Arch, back.Arch)
	require.Equal(t, desc.Masks, back.Masks)
}

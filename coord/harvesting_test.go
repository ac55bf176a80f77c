package coord

import (
	"testing"

	"github.com/stretchr/testify/require"

	"umd/arch"
)

func TestShuffleHarvestingMaskPermutesBlackholeColumns(t *testing.T) {
	impl := arch.For(arch.Blackhole) // Blackhole permutes columns, not rows
	got := ShuffleHarvestingMask(impl, 0b101)
	want := uint32(1)<<uint(impl.Noc0ToNoc1X[0]) | uint32(1)<<uint(impl.Noc0ToNoc1X[2])
	require.Equal(t, want, got, "Blackhole shuffles along its column vector")
}

func TestShuffleHarvestingMaskPermutesWormholeRows(t *testing.T) {
	impl := arch.For(arch.WormholeB0)
	physical := uint32(1) // row 0 in raw wiring order
	shuffled := ShuffleHarvestingMask(impl, physical)

	want := uint32(1) << uint(impl.Noc0ToNoc1Y[0])
	require.Equal(t, want, shuffled)
}

func TestShuffleHarvestingMaskRoundTripsThroughCoordinateManager(t *testing.T) {
	impl := arch.For(arch.WormholeB0)
	// Pretend ARC reported physical row 0 as harvested; the shuffled mask
	// must be a valid HarvestingMasks.Tensix value that NewCoordinateManager
	// accepts and that disables exactly one logical row.
	shuffled := ShuffleHarvestingMask(impl, 1)

	mgr, err := NewCoordinateManager(impl, HarvestingMasks{Tensix: shuffled})
	require.NoError(t, err)
	require.NotEmpty(t, mgr.CoresOf(Tensix, true))
}

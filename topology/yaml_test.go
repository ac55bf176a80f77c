package topology

import (
	"testing"

	"github.com/stretchr/testify/require"

	"umd/arch"
	"umd/coord"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	desc := newClusterDescriptor()
	desc.AllChips[0] = true
	desc.AllChips[1] = true
	desc.Archs[0] = arch.WormholeB0
	desc.Archs[1] = arch.WormholeB0
	desc.ChipsWithMMIO[0] = 0
	desc.ChipLocations[0] = EthCoord{X: 0, Y: 0, Rack: 0, Shelf: 0}
	desc.ChipLocations[1] = EthCoord{X: 1, Y: 0, Rack: 0, Shelf: 0}
	desc.ChipInfos[0] = ChipInfo{BoardType: coord.BoardN300, HarvestingMasks: coord.HarvestingMasks{Tensix: 0b11}}
	desc.ChipInfos[1] = ChipInfo{BoardType: coord.BoardN300, NocTranslationEnabled: true}
	local := EthEndpoint{Chip: 0, Channel: 0}
	remoteEnd := EthEndpoint{Chip: 1, Channel: 0}
	desc.EthernetConnections[local] = remoteEnd
	desc.EthernetConnections[remoteEnd] = local
	require.NoError(t, computeExitChips(desc))
	assignClusterIDs(desc)
	computeClosestMMIO(desc)

	data, err := Marshal(desc)
	require.NoError(t, err)

	back, err := Unmarshal(data)
	require.NoError(t, err)

	require.Len(t, back.AllChips, 2)
	require.Equal(t, desc.Archs[0], back.Archs[0])
	require.Equal(t, desc.ChipInfos[0].HarvestingMasks, back.ChipInfos[0].HarvestingMasks)
	require.Equal(t, desc.ChipLocations[1].X, back.ChipLocations[1].X)
	require.True(t, back.IsMMIO(0))
	// Round trip is a law only "up to chip-id relabeling": cluster ids and
	// connectivity must match, not necessarily the exact ChipId values.
	require.Equal(t, back.ChipLocations[0].ClusterID, back.ChipLocations[1].ClusterID)
	closest, ok := back.ClosestMMIOChip(1)
	require.True(t, ok)
	require.Equal(t, ChipId(0), closest)
}

package topology

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func descWithChips(n int) *ClusterDescriptor {
	desc := newClusterDescriptor()
	for i := 0; i < n; i++ {
		id := ChipId(i)
		desc.AllChips[id] = true
		desc.ChipLocations[id] = EthCoord{}
	}
	return desc
}

func link(desc *ClusterDescriptor, a, b ChipId, ca, cb Channel) {
	la := EthEndpoint{Chip: a, Channel: ca}
	lb := EthEndpoint{Chip: b, Channel: cb}
	desc.EthernetConnections[la] = lb
	desc.EthernetConnections[lb] = la
}

func TestAssignClusterIDsTwoDisconnectedComponents(t *testing.T) {
	desc := descWithChips(4)
	link(desc, 0, 1, 0, 0)
	link(desc, 2, 3, 0, 0)

	assignClusterIDs(desc)
	require.Equal(t, desc.ChipLocations[0].ClusterID, desc.ChipLocations[1].ClusterID)
	require.Equal(t, desc.ChipLocations[2].ClusterID, desc.ChipLocations[3].ClusterID)
	require.NotEqual(t, desc.ChipLocations[0].ClusterID, desc.ChipLocations[2].ClusterID)
}

func TestComputeExitChipsShelfCrossing(t *testing.T) {
	desc := descWithChips(2)
	loc0 := desc.ChipLocations[0]
	loc0.Shelf, loc0.Rack, loc0.Y = 0, 0, 3
	desc.ChipLocations[0] = loc0
	loc1 := desc.ChipLocations[1]
	loc1.Shelf, loc1.Rack, loc1.Y = 1, 0, 3
	desc.ChipLocations[1] = loc1
	link(desc, 0, 1, 0, 0)

	err := computeExitChips(desc)
	require.NoError(t, err)
	key := shelfRowKey{shelf: 0, row: 3}
	require.Equal(t, ChipId(0), desc.exitChipsShelf[key])
}

func TestComputeExitChipsConflictingClaimErrors(t *testing.T) {
	desc := descWithChips(3)
	for i := range desc.ChipLocations {
		loc := desc.ChipLocations[i]
		loc.Y = 3
		desc.ChipLocations[i] = loc
	}
	loc1 := desc.ChipLocations[1]
	loc1.Shelf = 1
	desc.ChipLocations[1] = loc1
	loc2 := desc.ChipLocations[2]
	loc2.Shelf = 0
	desc.ChipLocations[2] = loc2

	// Two different chips (0 and 2) both claim the (shelf=0, row=3) exit
	// slot towards shelf 1.
	link(desc, 0, 1, 0, 0)
	link(desc, 2, 1, 1, 1)

	err := computeExitChips(desc)
	require.Error(t, err)
}

func TestComputeClosestMMIOReachesAcrossShelfBoundary(t *testing.T) {
	desc := descWithChips(3)
	// Chip 0 is MMIO-capable. Chip 1 is a same-shelf/rack hop away (cost 1).
	// Chip 2 is reachable via chip 1 but crosses a shelf boundary (cost 2),
	// and is NOT directly linked to chip 0.
	desc.ChipsWithMMIO[0] = 0
	loc2 := desc.ChipLocations[2]
	loc2.Shelf = 1
	desc.ChipLocations[2] = loc2
	link(desc, 0, 1, 0, 0)
	link(desc, 1, 2, 1, 0)

	if err := computeExitChips(desc); err != nil {
		t.Fatalf("computeExitChips: %v", err)
	}
	computeClosestMMIO(desc)

	closest, ok := desc.ClosestMMIOChip(2)
	require.True(t, ok)
	require.Equal(t, ChipId(0), closest)
}

package topology

import (
	"testing"

	"github.com/stretchr/testify/require"

	"umd/arch"
	"umd/coord"
)

// fakeProber is a hand-wired Ethernet graph, keyed by the tag reachTag
// builds from a Reach so tests don't need real hardware — the same
// split tlb.Allocator uses between Allocate and allocateNoKernel.
type fakeProber struct {
	endpoints []MMIOEndpoint
	// links maps a reach tag ("mmio:0", "mmio:0:1", ...) to its live
	// link table.
	links map[string][]LinkEntry
	// info maps a reach tag to the (ChipInfo, EthCoord, boardID, arch) a
	// real chip would report.
	info map[string]fakeChip
}

type fakeChip struct {
	info    ChipInfo
	loc     EthCoord
	boardID uint64
	a       arch.Arch
}

func reachTag(r Reach) string {
	if r.MMIO != nil {
		return "mmio:" + string(rune('0'+r.MMIO.PCIIndex))
	}
	return reachTag(*r.Carrier) + ":" + string(rune('0'+int(r.CarrierChannel)))
}

func (p *fakeProber) MMIOEndpoints() ([]MMIOEndpoint, error) { return p.endpoints, nil }

func (p *fakeProber) ChipInfo(r Reach) (ChipInfo, EthCoord, uint64, arch.Arch, error) {
	c, ok := p.info[reachTag(r)]
	if !ok {
		return ChipInfo{}, EthCoord{}, 0, 0, errNotFound
	}
	return c.info, c.loc, c.boardID, c.a, nil
}

func (p *fakeProber) LinkTable(r Reach) ([]LinkEntry, error) {
	return p.links[reachTag(r)], nil
}

var errNotFound = &notFoundErr{}

type notFoundErr struct{}

func (*notFoundErr) Error() string { return "fake chip not registered" }

func boardInfo(tensixMask uint32) ChipInfo {
	return ChipInfo{HarvestingMasks: coord.HarvestingMasks{Tensix: tensixMask}, BoardType: coord.BoardN300}
}

func TestBuildSingleMMIOChipNoLinks(t *testing.T) {
	p := &fakeProber{
		endpoints: []MMIOEndpoint{{PCIIndex: 0, Arch: arch.WormholeB0}},
		links:     map[string][]LinkEntry{"mmio:0": nil},
		info:      map[string]fakeChip{"mmio:0": {info: boardInfo(0), boardID: 1, a: arch.WormholeB0}},
	}
	desc, err := Build(p)
	require.NoError(t, err)
	require.Len(t, desc.AllChips, 1)
	require.True(t, desc.IsMMIO(0))
}

func TestBuildTwoMMIOChipsDirectLink(t *testing.T) {
	p := &fakeProber{
		endpoints: []MMIOEndpoint{
			{PCIIndex: 0, Arch: arch.WormholeB0},
			{PCIIndex: 1, Arch: arch.WormholeB0},
		},
		links: map[string][]LinkEntry{
			"mmio:0": {{Channel: 0, Trained: true, RemoteBoardID: 2, RemoteChannel: 0}},
			"mmio:1": {{Channel: 0, Trained: true, RemoteBoardID: 1, RemoteChannel: 0}},
		},
		info: map[string]fakeChip{
			"mmio:0": {info: boardInfo(0), boardID: 1, a: arch.WormholeB0},
			"mmio:1": {info: boardInfo(0), boardID: 2, a: arch.WormholeB0},
		},
	}
	desc, err := Build(p)
	require.NoError(t, err)
	require.Len(t, desc.AllChips, 2)

	// Both chips must land in the same cluster: one trained edge unions them.
	require.Equal(t, desc.ChipLocations[0].ClusterID, desc.ChipLocations[1].ClusterID)
	neighbors := desc.Neighbors(0)
	require.Len(t, neighbors, 1)
	require.Equal(t, ChipId(1), neighbors[0].Chip)
}

func TestBuildRemoteChipOneHop(t *testing.T) {
	p := &fakeProber{
		endpoints: []MMIOEndpoint{{PCIIndex: 0, Arch: arch.WormholeB0}},
		links: map[string][]LinkEntry{
			"mmio:0":   {{Channel: 0, Trained: true, RemoteBoardID: 99, RemoteChannel: 0}},
			"mmio:0:0": nil,
		},
		info: map[string]fakeChip{
			"mmio:0":   {info: boardInfo(0), boardID: 1, a: arch.WormholeB0},
			"mmio:0:0": {info: boardInfo(0), boardID: 99, a: arch.WormholeB0},
		},
	}
	desc, err := Build(p)
	require.NoError(t, err)
	require.Len(t, desc.AllChips, 2)

	var remoteID ChipId = -1
	for id := range desc.AllChips {
		if !desc.IsMMIO(id) {
			remoteID = id
		}
	}
	require.NotEqual(t, ChipId(-1), remoteID, "expected one non-MMIO chip")
	closest, ok := desc.ClosestMMIOChip(remoteID)
	require.True(t, ok)
	require.Equal(t, ChipId(0), closest)
}

func TestBuildUntrainedLinkIgnored(t *testing.T) {
	p := &fakeProber{
		endpoints: []MMIOEndpoint{{PCIIndex: 0, Arch: arch.WormholeB0}},
		links: map[string][]LinkEntry{
			"mmio:0": {{Channel: 0, Trained: false}},
		},
		info: map[string]fakeChip{
			"mmio:0": {info: boardInfo(0), boardID: 1, a: arch.WormholeB0},
		},
	}
	desc, err := Build(p)
	require.NoError(t, err)
	require.Len(t, desc.AllChips, 1)
	require.Empty(t, desc.EthernetConnections)
}

func TestBuildNoMMIOEndpointsErrors(t *testing.T) {
	p := &fakeProber{}
	_, err := Build(p)
	require.Error(t, err)
}

// Package topology walks the live Ethernet fabric reachable from a set of
// MMIO-capable endpoints and unifies it into a single ClusterDescriptor:
// every chip gets a unique ChipId, every trained Ethernet link becomes a
// symmetric graph edge, and disjoint-set union plus BFS compute cluster
// membership and closest-MMIO routing (spec.md §4.9, §6.4).
package topology

import (
	"fmt"

	"umd/arch"
	"umd/coord"
)

// ChipId is a small integer assigned during discovery. Stable within one
// Cluster/process, not across processes (spec.md §3).
type ChipId int

// Channel is an ERISC core's Ethernet channel index on its chip.
type Channel int

// EthCoord places a chip within the wider multi-shelf/multi-rack fabric
// (spec.md §3). ClusterID is the disjoint-set root of every chip reachable
// from this one by Ethernet hops.
type EthCoord struct {
	ClusterID   int
	X, Y        int
	Rack, Shelf int
}

// ChipInfo is the per-chip metadata built once at discovery (spec.md §3).
type ChipInfo struct {
	NocTranslationEnabled bool
	HarvestingMasks       coord.HarvestingMasks
	BoardType             coord.BoardType
	BoardID               uint64
	AsicLocation          int
}

// EthEndpoint identifies one side of a trained Ethernet link: a chip and
// the channel its ERISC core occupies.
type EthEndpoint struct {
	Chip    ChipId
	Channel Channel
}

func (e EthEndpoint) String() string { return fmt.Sprintf("chip%d:ch%d", e.Chip, e.Channel) }

// ClusterDescriptor is the graph of every chip reachable from the
// discovered MMIO endpoints (spec.md §3).
type ClusterDescriptor struct {
	AllChips            map[ChipId]bool
	ChipLocations       map[ChipId]EthCoord
	ChipsWithMMIO       map[ChipId]int // ChipId -> PCI device index
	EthernetConnections map[EthEndpoint]EthEndpoint
	ChipInfos           map[ChipId]ChipInfo
	Archs               map[ChipId]arch.Arch

	closestMMIOChip map[ChipId]ChipId
	exitChipsShelf  map[shelfRowKey]ChipId // one exit chip per (shelf, row)
	exitChipsRack   map[rackColKey]ChipId  // one exit chip per (rack, column)
}

type shelfRowKey struct{ shelf, row int }
type rackColKey struct{ rack, col int }

func newClusterDescriptor() *ClusterDescriptor {
	return &ClusterDescriptor{
		AllChips:            make(map[ChipId]bool),
		ChipLocations:       make(map[ChipId]EthCoord),
		ChipsWithMMIO:       make(map[ChipId]int),
		EthernetConnections: make(map[EthEndpoint]EthEndpoint),
		ChipInfos:           make(map[ChipId]ChipInfo),
		Archs:               make(map[ChipId]arch.Arch),
		closestMMIOChip:     make(map[ChipId]ChipId),
		exitChipsShelf:      make(map[shelfRowKey]ChipId),
		exitChipsRack:       make(map[rackColKey]ChipId),
	}
}

// IsMMIO reports whether id is directly PCIe-reachable.
func (d *ClusterDescriptor) IsMMIO(id ChipId) bool {
	_, ok := d.ChipsWithMMIO[id]
	return ok
}

// ClosestMMIOChip returns the Ethernet-shortest-path MMIO-capable peer of
// id, cached during Build (spec.md §4.9 step 7, GLOSSARY "Closest MMIO
// chip").
func (d *ClusterDescriptor) ClosestMMIOChip(id ChipId) (ChipId, bool) {
	c, ok := d.closestMMIOChip[id]
	return c, ok
}

// Neighbors returns every chip directly Ethernet-connected to id, paired
// with the local/remote channel on each side of the link.
func (d *ClusterDescriptor) Neighbors(id ChipId) []EthEndpoint {
	var out []EthEndpoint
	for local, remote := range d.EthernetConnections {
		if local.Chip == id {
			out = append(out, remote)
		}
	}
	return out
}

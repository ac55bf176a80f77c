package topology

import (
	"sync"

	"umd/arch"
	"umd/errs"
)

// MMIOEndpoint is one PCIe-reachable chip discovered before Ethernet
// walking begins (spec.md §4.9 step 1).
type MMIOEndpoint struct {
	PCIIndex int
	Arch     arch.Arch
}

// LinkEntry is one entry of a live chip's Ethernet link table (spec.md
// §4.9 step 2): which local channel, whether it trained, and — if
// trained — the board id and channel index of whatever is on the other
// end (identity is resolved by the caller via ChipInfo on a Reach built
// from this entry).
type LinkEntry struct {
	Channel       Channel
	Trained       bool
	RemoteBoardID uint64
	RemoteChannel Channel
}

// Reach is how discovery tells a Prober which chip to talk to: either a
// direct MMIO endpoint, or a channel on some other chip's already-resolved
// Reach, tunneled through that chip's ERISC core. Reach values form a
// chain back to an MMIOEndpoint, so hop depth is unbounded — required for
// multi-shelf/multi-rack systems where a remote chip's own links must also
// be walked (spec.md §4.9, §9 "Cyclic chip graph": Reach is a value, never
// an owning pointer into the descriptor).
type Reach struct {
	MMIO           *MMIOEndpoint
	Carrier        *Reach
	CarrierChannel Channel
}

// Prober is the hardware-facing half of discovery. Build is pure graph
// logic layered on top of it (union-find, BFS, exit-chip detection), kept
// testable without real hardware the same way tlb.Allocator separates
// Allocate from allocateNoKernel.
type Prober interface {
	// MMIOEndpoints enumerates every PCIe-reachable chip (spec.md §4.9
	// step 1).
	MMIOEndpoints() ([]MMIOEndpoint, error)
	// ChipInfo resolves a Reach's identity: its ChipInfo, its position in
	// the wider fabric, its board id (the key discovery dedupes newly
	// found chips on), and its arch.
	ChipInfo(r Reach) (ChipInfo, EthCoord, uint64, arch.Arch, error)
	// LinkTable reads the live per-channel Ethernet training state for
	// the chip at r (spec.md §4.9 step 2).
	LinkTable(r Reach) ([]LinkEntry, error)
}

type frontierEntry struct {
	id    ChipId
	reach Reach
}

// Build walks every MMIO endpoint's Ethernet link table, discovering and
// probing newly-seen peers breadth-first, then computes cluster
// membership, exit chips, and closest-MMIO routing over the resulting
// graph (spec.md §4.9 steps 1-7).
func Build(p Prober) (*ClusterDescriptor, error) {
	endpoints, err := p.MMIOEndpoints()
	if err != nil {
		return nil, err
	}
	if len(endpoints) == 0 {
		return nil, errs.New(errs.KindTopologyError, "no MMIO-capable endpoints found")
	}

	desc := newClusterDescriptor()
	boardToChip := make(map[uint64]ChipId)
	var nextID ChipId
	var frontier []frontierEntry

	for i := range endpoints {
		ep := endpoints[i]
		reach := Reach{MMIO: &ep}
		info, loc, boardID, a, err := p.ChipInfo(reach)
		if err != nil {
			return nil, err
		}
		id := nextID
		nextID++
		desc.AllChips[id] = true
		desc.ChipsWithMMIO[id] = ep.PCIIndex
		desc.ChipInfos[id] = info
		desc.ChipLocations[id] = loc
		desc.Archs[id] = a
		boardToChip[boardID] = id
		frontier = append(frontier, frontierEntry{id, reach})
	}

	// BFS over the Ethernet graph: every chip in the current frontier has
	// its link table read concurrently (grounded on discovery.go's
	// DiscoverServers worker-pool fan-out, here walking chip links
	// instead of scanning a subnet), then newly-seen peers are probed and
	// folded into the next frontier.
	for len(frontier) > 0 {
		type linkResult struct {
			entry frontierEntry
			links []LinkEntry
			err   error
		}
		results := make([]linkResult, len(frontier))
		var wg sync.WaitGroup
		for i, fe := range frontier {
			wg.Add(1)
			go func(i int, fe frontierEntry) {
				defer wg.Done()
				links, err := p.LinkTable(fe.reach)
				results[i] = linkResult{fe, links, err}
			}(i, fe)
		}
		wg.Wait()

		var next []frontierEntry
		for _, res := range results {
			if res.err != nil {
				return nil, res.err
			}
			for _, l := range res.links {
				if !l.Trained {
					continue
				}
				localEnd := EthEndpoint{Chip: res.entry.id, Channel: l.Channel}
				if _, ok := desc.EthernetConnections[localEnd]; ok {
					continue // already resolved from the peer's own frontier pass
				}
				if peerID, ok := boardToChip[l.RemoteBoardID]; ok {
					remoteEnd := EthEndpoint{Chip: peerID, Channel: l.RemoteChannel}
					desc.EthernetConnections[localEnd] = remoteEnd
					desc.EthernetConnections[remoteEnd] = localEnd
					continue
				}

				carrierReach := res.entry.reach
				peerReach := Reach{Carrier: &carrierReach, CarrierChannel: l.Channel}
				info, loc, boardID, a, err := p.ChipInfo(peerReach)
				if err != nil {
					return nil, err
				}
				peerID := nextID
				nextID++
				desc.AllChips[peerID] = true
				desc.ChipInfos[peerID] = info
				desc.ChipLocations[peerID] = loc
				desc.Archs[peerID] = a
				boardToChip[boardID] = peerID

				remoteEnd := EthEndpoint{Chip: peerID, Channel: l.RemoteChannel}
				desc.EthernetConnections[localEnd] = remoteEnd
				desc.EthernetConnections[remoteEnd] = localEnd
				next = append(next, frontierEntry{peerID, peerReach})
			}
		}
		frontier = next
	}

	assignClusterIDs(desc)
	if err := computeExitChips(desc); err != nil {
		return nil, err
	}
	computeClosestMMIO(desc)
	return desc, nil
}

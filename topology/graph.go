package topology

import (
	"container/heap"

	"umd/errs"
)

// disjointSet is a standard union-find over ChipId, used to assign
// EthCoord.ClusterID as "the root of every chip reachable by Ethernet"
// (spec.md §3 EthCoord invariant, §4.9 step 5).
type disjointSet struct {
	parent map[ChipId]ChipId
}

func newDisjointSet(ids []ChipId) *disjointSet {
	ds := &disjointSet{parent: make(map[ChipId]ChipId, len(ids))}
	for _, id := range ids {
		ds.parent[id] = id
	}
	return ds
}

func (ds *disjointSet) find(id ChipId) ChipId {
	for ds.parent[id] != id {
		ds.parent[id] = ds.parent[ds.parent[id]] // path halving
		id = ds.parent[id]
	}
	return id
}

func (ds *disjointSet) union(a, b ChipId) {
	ra, rb := ds.find(a), ds.find(b)
	if ra != rb {
		ds.parent[ra] = rb
	}
}

// assignClusterIDs unions every chip pair joined by a trained Ethernet
// edge and writes the resulting root into each chip's EthCoord.ClusterID,
// normalized to small sequential integers in root-discovery order so IDs
// are stable across otherwise-equivalent runs (spec.md §4.9 step 5).
func assignClusterIDs(desc *ClusterDescriptor) {
	ids := make([]ChipId, 0, len(desc.AllChips))
	for id := range desc.AllChips {
		ids = append(ids, id)
	}
	ds := newDisjointSet(ids)
	for local, remote := range desc.EthernetConnections {
		ds.union(local.Chip, remote.Chip)
	}

	rootToClusterID := make(map[ChipId]int)
	nextClusterID := 0
	for _, id := range ids {
		root := ds.find(id)
		cid, ok := rootToClusterID[root]
		if !ok {
			cid = nextClusterID
			nextClusterID++
			rootToClusterID[root] = cid
		}
		loc := desc.ChipLocations[id]
		loc.ClusterID = cid
		desc.ChipLocations[id] = loc
	}
}

// computeExitChips finds, for every (shelf, row) and (rack, column) pair,
// the unique chip through which Ethernet traffic crosses into the next
// shelf or rack — an edge whose two endpoints disagree on Shelf (with
// equal Rack) or on Rack (spec.md §4.9 step 6,
// galaxy_shelves_exit_chip_coords_per_y_dim /
// _racks_exit_chip_coords_per_x_dim). Two different chips claiming the
// same (shelf, row) or (rack, column) exit slot is a TopologyError.
func computeExitChips(desc *ClusterDescriptor) error {
	for local, remote := range desc.EthernetConnections {
		locLoc, remLoc := desc.ChipLocations[local.Chip], desc.ChipLocations[remote.Chip]

		if locLoc.Rack == remLoc.Rack && locLoc.Shelf != remLoc.Shelf {
			key := shelfRowKey{shelf: locLoc.Shelf, row: locLoc.Y}
			if existing, ok := desc.exitChipsShelf[key]; ok && existing != local.Chip {
				return errs.New(errs.KindTopologyError, "conflicting shelf exit chip")
			}
			desc.exitChipsShelf[key] = local.Chip
		}
		if locLoc.Shelf == remLoc.Shelf && locLoc.Rack != remLoc.Rack {
			key := rackColKey{rack: locLoc.Rack, col: locLoc.X}
			if existing, ok := desc.exitChipsRack[key]; ok && existing != local.Chip {
				return errs.New(errs.KindTopologyError, "conflicting rack exit chip")
			}
			desc.exitChipsRack[key] = local.Chip
		}
	}
	return nil
}

// crossesBoundary reports whether the edge from a to b leaves a's shelf or
// rack (their Shelf or Rack values differ; the exit-chip tables are not
// consulted) — used to add the +1 hop-cost spec.md §4.9 step 7 charges for
// crossing a shelf/rack boundary.
func crossesBoundary(desc *ClusterDescriptor, a, b ChipId) bool {
	la, lb := desc.ChipLocations[a], desc.ChipLocations[b]
	return la.Rack != lb.Rack || la.Shelf != lb.Shelf
}

// pqItem is one entry in computeClosestMMIO's Dijkstra frontier.
type pqItem struct {
	chip ChipId
	cost int
}

type priorityQueue []pqItem

func (q priorityQueue) Len() int            { return len(q) }
func (q priorityQueue) Less(i, j int) bool  { return q[i].cost < q[j].cost }
func (q priorityQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *priorityQueue) Push(x interface{}) { *q = append(*q, x.(pqItem)) }
func (q *priorityQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// computeClosestMMIO runs a multi-source Dijkstra from every MMIO-capable
// chip simultaneously over the undirected Ethernet graph, with hop cost 1
// within a shelf/rack and +1 when the edge crosses a shelf/rack boundary
// (spec.md §4.9 step 7, GLOSSARY "Closest MMIO chip"). Results are cached
// on the descriptor.
func computeClosestMMIO(desc *ClusterDescriptor) {
	const inf = int(^uint(0) >> 1)
	dist := make(map[ChipId]int, len(desc.AllChips))
	source := make(map[ChipId]ChipId, len(desc.AllChips))
	for id := range desc.AllChips {
		dist[id] = inf
	}

	pq := &priorityQueue{}
	heap.Init(pq)
	for id := range desc.ChipsWithMMIO {
		dist[id] = 0
		source[id] = id
		heap.Push(pq, pqItem{chip: id, cost: 0})
	}

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(pqItem)
		if cur.cost > dist[cur.chip] {
			continue
		}
		for _, nb := range desc.Neighbors(cur.chip) {
			cost := 1
			if crossesBoundary(desc, cur.chip, nb.Chip) {
				cost++
			}
			newCost := cur.cost + cost
			if newCost < dist[nb.Chip] {
				dist[nb.Chip] = newCost
				source[nb.Chip] = source[cur.chip]
				heap.Push(pq, pqItem{chip: nb.Chip, cost: newCost})
			}
		}
	}

	for id, mmio := range source {
		desc.closestMMIOChip[id] = mmio
	}
	for id := range desc.ChipsWithMMIO {
		desc.closestMMIOChip[id] = id
	}
}

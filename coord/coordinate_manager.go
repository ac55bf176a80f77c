package coord

import (
	"sort"

	"umd/arch"
	"umd/errs"
)

type coreRec struct {
	x0, y0     int // NOC0 coordinates
	typ        CoreType
	harvested  bool
	logicalIdx int // -1 when harvested
}

// CoordinateManager is the pure, per-chip translation engine between the
// four coordinate systems. It is built once from an arch.Impl plus the
// chip's harvesting masks and never mutated afterward (spec.md §4.5/§8).
type CoordinateManager struct {
	impl  *arch.Impl
	masks HarvestingMasks

	recs []*coreRec

	// axis compaction for the Translated system: NOC0 value -> Translated
	// value, or -1 if that row/column is itself harvested away.
	axisMapX []int
	axisMapY []int

	invNoc1X []int // NOC1 x -> NOC0 x
	invNoc1Y []int // NOC1 y -> NOC0 y

	byNOC0       map[arch.Coord]*coreRec
	byTranslated map[arch.Coord]*coreRec
	byNOC1       map[arch.Coord]*coreRec
	byLogical    map[CoreType]map[int]*coreRec
}

// NewCoordinateManager builds the translation tables for one chip. It
// returns errs.HarvestingInvalid if masks violates a cross-field invariant.
func NewCoordinateManager(impl *arch.Impl, masks HarvestingMasks) (*CoordinateManager, error) {
	if err := masks.Validate(len(impl.DefaultPcieCores)); err != nil {
		return nil, err
	}

	m := &CoordinateManager{
		impl:         impl,
		masks:        masks,
		byNOC0:       make(map[arch.Coord]*coreRec),
		byTranslated: make(map[arch.Coord]*coreRec),
		byNOC1:       make(map[arch.Coord]*coreRec),
		byLogical:    make(map[CoreType]map[int]*coreRec),
	}

	m.addCores(Tensix, impl.DefaultTensixCores, tensixHarvestUnit(impl))
	m.addCores(Eth, impl.DefaultEthCores, sequentialHarvestUnit())
	m.addDramCores(impl.DefaultDramCores)
	m.addCores(Arc, impl.DefaultArcCores, neverHarvested())
	m.addPcieCores(impl.DefaultPcieCores)

	m.buildAxisMaps()
	m.buildNoc1Inverse()
	m.assignLogicalIndices()
	m.indexAll()

	return m, nil
}

// harvestUnit maps a core's position within its type's NOC0-sorted list to
// the bit index in the relevant HarvestingMasks field that disables it.
type harvestUnit func(masks HarvestingMasks, idxInType int, coords []arch.Coord) bool

func sequentialHarvestUnit() harvestUnit {
	return func(masks HarvestingMasks, idx int, _ []arch.Coord) bool {
		return bitSet(masks.Eth, idx)
	}
}

func neverHarvested() harvestUnit {
	return func(HarvestingMasks, int, []arch.Coord) bool { return false }
}

// tensixHarvestUnit disables a whole row (WormholeB0) or a whole column
// (Blackhole) per spec.md §4.5's per-arch harvesting granularity note.
func tensixHarvestUnit(impl *arch.Impl) harvestUnit {
	byRow := impl.Arch == arch.WormholeB0
	return func(masks HarvestingMasks, idx int, coords []arch.Coord) bool {
		var distinct []int
		seen := map[int]bool{}
		for _, c := range coords {
			v := c.Y
			if !byRow {
				v = c.X
			}
			if !seen[v] {
				seen[v] = true
				distinct = append(distinct, v)
			}
		}
		sort.Ints(distinct)
		v := coords[idx].Y
		if !byRow {
			v = coords[idx].X
		}
		for i, dv := range distinct {
			if dv == v {
				return bitSet(masks.Tensix, i)
			}
		}
		return false
	}
}

func sortedByYX(cs []arch.Coord) []arch.Coord {
	out := make([]arch.Coord, len(cs))
	copy(out, cs)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Y != out[j].Y {
			return out[i].Y < out[j].Y
		}
		return out[i].X < out[j].X
	})
	return out
}

func (m *CoordinateManager) addCores(t CoreType, coords []arch.Coord, hu harvestUnit) {
	sorted := sortedByYX(coords)
	for i, c := range sorted {
		m.recs = append(m.recs, &coreRec{
			x0: c.X, y0: c.Y, typ: t,
			harvested:  hu(m.masks, i, sorted),
			logicalIdx: -1,
		})
	}
}

// addDramCores harvests an entire channel (all banks) together, keyed by
// channel index, per spec.md §4.5.
func (m *CoordinateManager) addDramCores(channels [][]arch.Coord) {
	for ch, banks := range channels {
		harvested := bitSet(m.masks.Dram, ch)
		for _, c := range sortedByYX(banks) {
			m.recs = append(m.recs, &coreRec{x0: c.X, y0: c.Y, typ: Dram, harvested: harvested, logicalIdx: -1})
		}
	}
}

// addPcieCores assigns CoreType Pcie to surviving cores and RouterOnly to a
// harvested PCIe core: it keeps its position in the grid but can no longer
// reach the host, so it becomes a NOC router hop only (spec.md §4.6's
// RouterOnlyCores supplement).
func (m *CoordinateManager) addPcieCores(coords []arch.Coord) {
	sorted := sortedByYX(coords)
	for i, c := range sorted {
		if bitSet(m.masks.Pcie, i) {
			m.recs = append(m.recs, &coreRec{x0: c.X, y0: c.Y, typ: RouterOnly, harvested: false, logicalIdx: -1})
			continue
		}
		m.recs = append(m.recs, &coreRec{x0: c.X, y0: c.Y, typ: Pcie, harvested: false, logicalIdx: -1})
	}
}

// buildAxisMaps compacts the harvested tensix axis (rows for WormholeB0,
// columns for Blackhole) into the Translated coordinate system, per
// spec.md §4.5/§4.6: translated space has no gaps where harvested rows or
// columns used to be.
func (m *CoordinateManager) buildAxisMaps() {
	byRow := m.impl.Arch == arch.WormholeB0

	harvestedLine := make(map[int]bool)
	for _, r := range m.recs {
		if r.typ != Tensix || !r.harvested {
			continue
		}
		if byRow {
			harvestedLine[r.y0] = true
		} else {
			harvestedLine[r.x0] = true
		}
	}

	buildAxis := func(size int) []int {
		out := make([]int, size)
		next := 0
		for v := 0; v < size; v++ {
			if harvestedLine[v] {
				out[v] = -1
				continue
			}
			out[v] = next
			next++
		}
		return out
	}

	if byRow {
		m.axisMapX = identityAxis(m.impl.GridSizeX)
		m.axisMapY = buildAxis(m.impl.GridSizeY)
	} else {
		m.axisMapX = buildAxis(m.impl.GridSizeX)
		m.axisMapY = identityAxis(m.impl.GridSizeY)
	}
}

func identityAxis(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func (m *CoordinateManager) buildNoc1Inverse() {
	m.invNoc1X = invertPermutation(m.impl.Noc0ToNoc1X)
	m.invNoc1Y = invertPermutation(m.impl.Noc0ToNoc1Y)
}

func invertPermutation(p []int) []int {
	inv := make([]int, len(p))
	for i, v := range p {
		inv[v] = i
	}
	return inv
}

// assignLogicalIndices numbers surviving cores of each type contiguously in
// NOC0 order, per spec.md §4.5 "ordered-logical-index canonical form".
func (m *CoordinateManager) assignLogicalIndices() {
	byType := make(map[CoreType][]*coreRec)
	for _, r := range m.recs {
		byType[r.typ] = append(byType[r.typ], r)
	}
	for t, recs := range byType {
		sort.Slice(recs, func(i, j int) bool {
			if recs[i].y0 != recs[j].y0 {
				return recs[i].y0 < recs[j].y0
			}
			return recs[i].x0 < recs[j].x0
		})
		idx := 0
		table := make(map[int]*coreRec)
		for _, r := range recs {
			if r.harvested {
				continue
			}
			r.logicalIdx = idx
			table[idx] = r
			idx++
		}
		m.byLogical[t] = table
	}
}

func (m *CoordinateManager) indexAll() {
	for _, r := range m.recs {
		m.byNOC0[arch.Coord{X: r.x0, Y: r.y0}] = r
		ncX, ncY := m.impl.Noc0ToNoc1X[r.x0], m.impl.Noc0ToNoc1Y[r.y0]
		m.byNOC1[arch.Coord{X: ncX, Y: ncY}] = r
		if r.harvested {
			continue
		}
		tx, ty := m.axisMapX[r.x0], m.axisMapY[r.y0]
		if tx >= 0 && ty >= 0 {
			m.byTranslated[arch.Coord{X: tx, Y: ty}] = r
		}
	}
}

// Translate converts c into the target coordinate system. It fails with
// errs.HarvestingInvalid when the requested core has been fused off and
// target is Logical or Translated (both are defined only over surviving
// cores); NOC0 and NOC1 are always defined for any physically present core.
func (m *CoordinateManager) Translate(c CoreCoord, target CoordSystem) (CoreCoord, error) {
	r, err := m.resolve(c)
	if err != nil {
		return CoreCoord{}, err
	}
	return m.project(r, target)
}

func (m *CoordinateManager) resolve(c CoreCoord) (*coreRec, error) {
	switch c.System {
	case NOC0:
		r, ok := m.byNOC0[arch.Coord{X: c.X, Y: c.Y}]
		if !ok || r.typ != c.Type {
			return nil, errs.New(errs.KindInvalidAddress, "no such NOC0 core")
		}
		return r, nil
	case NOC1:
		r, ok := m.byNOC1[arch.Coord{X: c.X, Y: c.Y}]
		if !ok || r.typ != c.Type {
			return nil, errs.New(errs.KindInvalidAddress, "no such NOC1 core")
		}
		return r, nil
	case Translated:
		r, ok := m.byTranslated[arch.Coord{X: c.X, Y: c.Y}]
		if !ok || r.typ != c.Type {
			return nil, errs.New(errs.KindInvalidAddress, "no such translated core")
		}
		return r, nil
	case Logical:
		table, ok := m.byLogical[c.Type]
		if !ok {
			return nil, errs.New(errs.KindInvalidAddress, "no such logical type")
		}
		r, ok := table[c.X]
		if !ok {
			return nil, errs.New(errs.KindInvalidAddress, "no such logical core")
		}
		return r, nil
	default:
		return nil, errs.New(errs.KindInvalidAddress, "unknown coordinate system")
	}
}

func (m *CoordinateManager) project(r *coreRec, target CoordSystem) (CoreCoord, error) {
	switch target {
	case NOC0:
		return CoreCoord{X: r.x0, Y: r.y0, Type: r.typ, System: NOC0}, nil
	case NOC1:
		return CoreCoord{X: m.impl.Noc0ToNoc1X[r.x0], Y: m.impl.Noc0ToNoc1Y[r.y0], Type: r.typ, System: NOC1}, nil
	case Translated:
		if r.harvested {
			return CoreCoord{}, errs.New(errs.KindHarvestingInvalid, "core is harvested: no translated coordinate")
		}
		tx, ty := m.axisMapX[r.x0], m.axisMapY[r.y0]
		if tx < 0 || ty < 0 {
			return CoreCoord{}, errs.New(errs.KindHarvestingInvalid, "core sits on a harvested row/column")
		}
		return CoreCoord{X: tx, Y: ty, Type: r.typ, System: Translated}, nil
	case Logical:
		if r.harvested {
			return CoreCoord{}, errs.New(errs.KindHarvestingInvalid, "core is harvested: no logical index")
		}
		return CoreCoord{X: r.logicalIdx, Y: 0, Type: r.typ, System: Logical}, nil
	default:
		return CoreCoord{}, errs.New(errs.KindInvalidAddress, "unknown coordinate system")
	}
}

// CoordAt looks up whichever core (of any type) sits at (x, y) in system.
func (m *CoordinateManager) CoordAt(x, y int, system CoordSystem) (CoreCoord, error) {
	var table map[arch.Coord]*coreRec
	switch system {
	case NOC0:
		table = m.byNOC0
	case NOC1:
		table = m.byNOC1
	case Translated:
		table = m.byTranslated
	default:
		return CoreCoord{}, errs.New(errs.KindInvalidAddress, "get_coord_at is not defined for the logical system")
	}
	r, ok := table[arch.Coord{X: x, Y: y}]
	if !ok {
		return CoreCoord{}, errs.New(errs.KindInvalidAddress, "no core at that position")
	}
	return m.project(r, system)
}

// CoresOf returns every core of type t, in NOC0 coordinates, NOC0-ordered.
// Harvested cores are included only when includeHarvested is set.
func (m *CoordinateManager) CoresOf(t CoreType, includeHarvested bool) []CoreCoord {
	var out []CoreCoord
	for _, r := range m.recs {
		if r.typ != t {
			continue
		}
		if r.harvested && !includeHarvested {
			continue
		}
		out = append(out, CoreCoord{X: r.x0, Y: r.y0, Type: r.typ, System: NOC0})
	}
	return out
}

// IsHarvested reports whether the NOC0 core (x, y) of type t has been fused off.
func (m *CoordinateManager) IsHarvested(t CoreType, x, y int) bool {
	r, ok := m.byNOC0[arch.Coord{X: x, Y: y}]
	return ok && r.typ == t && r.harvested
}

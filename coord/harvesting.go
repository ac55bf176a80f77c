package coord

import (
	"umd/arch"
	"umd/errs"
)

// HarvestingMasks is the set of bitmasks read off the ARC telemetry that
// mark which physical units of each type are fused off and must never be
// addressed (spec.md §4.5). Bit i of a mask disables the i-th unit of that
// type in NOC0 ordering: for Tensix that unit is a whole row (WormholeB0) or
// column (Blackhole); for Dram and Eth it is one channel; for Pcie it is one
// PCIe core, which stays on the NOC as a RouterOnly core; the L2Cpu mask is
// carried for API completeness but this module's arch tables never harvest
// L2Cpu cores.
type HarvestingMasks struct {
	Tensix uint32
	Dram   uint32
	Eth    uint32
	Pcie   uint32
	L2Cpu  uint32
}

func bitsSet(m uint32) int {
	n := 0
	for m != 0 {
		n += int(m & 1)
		m >>= 1
	}
	return n
}

// Validate enforces the cross-field invariants spec.md §4.5 calls out:
// at most one DRAM bank may be harvested, and a PCIe harvesting bit may
// only be set when the board in fact exposes two PCIe cores (so harvesting
// one still leaves a router-only core rather than losing PCIe entirely).
func (m HarvestingMasks) Validate(pcieCoreCount int) error {
	if bitsSet(m.Dram) > 1 {
		return errs.Wrap(errs.KindHarvestingInvalid, "at most one DRAM bank may be harvested", nil)
	}
	if bitsSet(m.Pcie) > 0 && pcieCoreCount < 2 {
		return errs.Wrap(errs.KindHarvestingInvalid, "PCIe harvesting requires a two-PCIe-core board", nil)
	}
	if bitsSet(m.Pcie) > 1 {
		return errs.Wrap(errs.KindHarvestingInvalid, "at most one PCIe core may be harvested", nil)
	}
	return nil
}

func maskFor(m HarvestingMasks, t CoreType) uint32 {
	switch t {
	case Tensix:
		return m.Tensix
	case Dram:
		return m.Dram
	case Eth:
		return m.Eth
	case Pcie:
		return m.Pcie
	case L2Cpu:
		return m.L2Cpu
	default:
		return 0
	}
}

func bitSet(mask uint32, i int) bool {
	if i < 0 || i >= 32 {
		return false
	}
	return mask&(1<<uint(i)) != 0
}

// ShuffleHarvestingMask converts a physical-layout tensix harvesting mask —
// bit i set meaning "the i-th row/column as wired on the die" the way ARC
// telemetry reports it — into the ordered-logical-index form every
// HarvestingMasks field uses everywhere else in this package. This is the
// one and only place the shuffle happens (spec.md §9 Open Question: the
// source has two inconsistent codepaths for shuffled-vs-physical masks;
// this module canonicalizes on logical indices at every API boundary and
// performs the shuffle exactly once, here, when ingesting from ARC).
//
// The permutation used is the arch's own NOC0->NOC1 axis vector restricted
// to the harvested axis (rows for WormholeB0, columns for Blackhole) — the
// only per-arch reordering the arch table publishes.
func ShuffleHarvestingMask(impl *arch.Impl, physicalMask uint32) uint32 {
	perm := impl.Noc0ToNoc1Y
	if impl.Arch == arch.Blackhole {
		perm = impl.Noc0ToNoc1X
	}
	var out uint32
	for i, p := range perm {
		if i >= 32 || p >= 32 {
			continue
		}
		if bitSet(physicalMask, i) {
			out |= 1 << uint(p)
		}
	}
	return out
}

// Package coord implements the bijective translation between the four
// coordinate systems (logical, NOC0, NOC1, translated) over a harvested
// physical grid, and the per-chip SocDescriptor built on top of it
// (spec.md §3, §4.5, §4.6).
package coord

import "fmt"

// CoreType is the kind of core a CoreCoord refers to.
type CoreType int

const (
	Tensix CoreType = iota
	Dram
	Eth
	Arc
	Pcie
	RouterOnly
	Security
	L2Cpu
)

func (t CoreType) String() string {
	switch t {
	case Tensix:
		return "tensix"
	case Dram:
		return "dram"
	case Eth:
		return "eth"
	case Arc:
		return "arc"
	case Pcie:
		return "pcie"
	case RouterOnly:
		return "router_only"
	case Security:
		return "security"
	case L2Cpu:
		return "l2cpu"
	default:
		return "unknown"
	}
}

// CoordSystem is one of the four coordinate spaces a CoreCoord can live in.
type CoordSystem int

const (
	Logical CoordSystem = iota
	NOC0
	Translated
	NOC1
)

func (s CoordSystem) String() string {
	switch s {
	case Logical:
		return "logical"
	case NOC0:
		return "noc0"
	case Translated:
		return "translated"
	case NOC1:
		return "noc1"
	default:
		return "unknown"
	}
}

// CoreCoord is a position plus its core type and the coordinate system the
// position is expressed in. Two CoreCoords compare equal only when all four
// fields match — spec.md §3.
type CoreCoord struct {
	X, Y   int
	Type   CoreType
	System CoordSystem
}

func (c CoreCoord) String() string {
	return fmt.Sprintf("%s(%d,%d)@%s", c.Type, c.X, c.Y, c.System)
}

package coord

import (
	"gopkg.in/yaml.v3"

	"umd/arch"
	"umd/errs"
)

// BoardType names the card a chip sits on (spec.md §4.6). It is stored in
// SocDescriptor.Board; PCIe core selection does not consult it (see
// PcieCore).
type BoardType int

const (
	BoardN300 BoardType = iota
	BoardN150
	BoardP100
	BoardP150
)

// SocDescriptor is the immutable, per-chip bundle combining an arch.Impl,
// a CoordinateManager built from this chip's harvesting masks, and the
// chip's board type. One SocDescriptor is built per
// discovered chip and never mutated after construction (spec.md §4.6).
type SocDescriptor struct {
	Arch  arch.Arch
	Board BoardType
	Masks HarvestingMasks

	mgr *CoordinateManager
}

// NewSocDescriptor builds the descriptor for one chip.
func NewSocDescriptor(a arch.Arch, board BoardType, masks HarvestingMasks) (*SocDescriptor, error) {
	impl := arch.For(a)
	mgr, err := NewCoordinateManager(impl, masks)
	if err != nil {
		return nil, err
	}
	return &SocDescriptor{Arch: a, Board: board, Masks: masks, mgr: mgr}, nil
}

// Manager returns the chip's coordinate translation engine.
func (d *SocDescriptor) Manager() *CoordinateManager { return d.mgr }

// GetCores returns all surviving cores of the given type, in NOC0 order,
// expressed in the requested coordinate system.
func (d *SocDescriptor) GetCores(t CoreType, system CoordSystem) ([]CoreCoord, error) {
	noc0 := d.mgr.CoresOf(t, false)
	out := make([]CoreCoord, 0, len(noc0))
	for _, c := range noc0 {
		tc, err := d.mgr.Translate(c, system)
		if err != nil {
			return nil, err
		}
		out = append(out, tc)
	}
	return out, nil
}

// GetDramCores returns the surviving DRAM cores grouped by channel, in the
// order the arch's default channel table defines (spec.md §4.6).
func (d *SocDescriptor) GetDramCores() [][]CoreCoord {
	impl := arch.For(d.Arch)
	out := make([][]CoreCoord, 0, len(impl.DefaultDramCores))
	for _, channel := range impl.DefaultDramCores {
		var banks []CoreCoord
		for _, c := range channel {
			if d.mgr.IsHarvested(Dram, c.X, c.Y) {
				continue
			}
			banks = append(banks, CoreCoord{X: c.X, Y: c.Y, Type: Dram, System: NOC0})
		}
		if len(banks) > 0 {
			out = append(out, banks)
		}
	}
	return out
}

// GetEthCoreForChannel returns the NOC0 coordinate of the ETH core
// implementing the given channel index, failing if that channel is
// harvested or out of range.
func (d *SocDescriptor) GetEthCoreForChannel(channel int) (CoreCoord, error) {
	cores := d.mgr.CoresOf(Eth, true)
	if channel < 0 || channel >= len(cores) {
		return CoreCoord{}, errs.New(errs.KindInvalidAddress, "eth channel out of range")
	}
	if d.mgr.IsHarvested(Eth, cores[channel].X, cores[channel].Y) {
		return CoreCoord{}, errs.New(errs.KindHarvestingInvalid, "eth channel is harvested")
	}
	return cores[channel], nil
}

// PcieCore returns the first surviving PCIe core in NOC0 order. The board
// type is not consulted: both arch tables list two PCIe cores, and only a
// set Pcie harvesting bit moves one of them into RouterOnlyCores, so on
// every board without such a bit the first listed core is returned.
func (d *SocDescriptor) PcieCore() (CoreCoord, error) {
	cores := d.mgr.CoresOf(Pcie, false)
	if len(cores) == 0 {
		return CoreCoord{}, errs.New(errs.KindHarvestingInvalid, "no surviving PCIe core on this board")
	}
	return cores[0], nil
}

// RouterOnlyCores returns cores that remain live on the NOC but can no
// longer reach the host — today that is only a harvested member of a
// dual-PCIe pair. Supplemented beyond spec.md's original scope because
// original_source/ models these explicitly as NOC routing hops rather than
// silently dropping them (see DESIGN.md).
func (d *SocDescriptor) RouterOnlyCores() []CoreCoord {
	return d.mgr.CoresOf(RouterOnly, false)
}

// descriptorDoc is the YAML-serializable projection of a SocDescriptor,
// deliberately shallow: spec.md treats deep SoC-descriptor YAML parsing as
// out of scope, so only the fields needed to reconstruct harvesting state
// round-trip.
type descriptorDoc struct {
	Arch   string          `yaml:"arch"`
	Board  int             `yaml:"board"`
	Tensix uint32          `yaml:"harvesting_tensix"`
	Dram   uint32          `yaml:"harvesting_dram"`
	Eth    uint32          `yaml:"harvesting_eth"`
	Pcie   uint32          `yaml:"harvesting_pcie"`
	L2Cpu  uint32          `yaml:"harvesting_l2cpu"`
}

// MarshalYAML serializes the descriptor's identity and harvesting state.
func (d *SocDescriptor) MarshalYAML() ([]byte, error) {
	doc := descriptorDoc{
		Arch:   d.Arch.String(),
		Board:  int(d.Board),
		Tensix: d.Masks.Tensix,
		Dram:   d.Masks.Dram,
		Eth:    d.Masks.Eth,
		Pcie:   d.Masks.Pcie,
		L2Cpu:  d.Masks.L2Cpu,
	}
	return yaml.Marshal(doc)
}

// UnmarshalSocDescriptor parses a descriptor previously written by
// MarshalYAML and rebuilds its CoordinateManager.
func UnmarshalSocDescriptor(data []byte) (*SocDescriptor, error) {
	var doc descriptorDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errs.Wrap(errs.KindIoError, "parsing soc descriptor yaml", err)
	}
	a, err := arch.Parse(doc.Arch)
	if err != nil {
		return nil, errs.Wrap(errs.KindTopologyError, "unknown arch in soc descriptor", err)
	}
	masks := HarvestingMasks{Tensix: doc.Tensix, Dram: doc.Dram, Eth: doc.Eth, Pcie: doc.Pcie, L2Cpu: doc.L2Cpu}
	return NewSocDescriptor(a, BoardType(doc.Board), masks)
}

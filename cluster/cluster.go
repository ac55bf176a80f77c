// Package cluster implements the public Cluster handle: ordered chip
// construction (local chips before remote, so a remote chip can borrow
// its carrier's RemoteCommunication), broadcast writes, device-wide reset
// and power state, and interprocess mutex lifecycle (spec.md §4.10).
package cluster

import (
	"sort"
	"sync"

	"umd/arch"
	"umd/chip"
	"umd/coord"
	"umd/errs"
	"umd/lockmgr"
	"umd/remote"
	"umd/sysmem"
	"umd/topology"
	"umd/ttdevice"
)

// Source is how Cluster reaches real hardware: topology.Build's Prober
// half to discover the fabric, plus a way to fetch the TTDevice backing
// each MMIO endpoint Build found. topology.LiveProber implements this.
type Source interface {
	topology.Prober
	MMIODevice(pciIndex int) (*ttdevice.TTDevice, error)
}

// Cluster is the public handle over every selected chip in a discovered
// or supplied topology.
type Cluster struct {
	opts  Options
	desc  *topology.ClusterDescriptor
	locks *lockmgr.LockManager

	order []topology.ChipId // construction order: local chips first
	chips map[topology.ChipId]chip.Chip

	sysmemMgrs map[topology.ChipId]*sysmem.SysmemManager

	mu    sync.Mutex
	power map[topology.ChipId]PowerState
}

// Descriptor returns the topology this cluster was built from.
func (c *Cluster) Descriptor() *topology.ClusterDescriptor { return c.desc }

// Chips returns every constructed chip, in construction order (local
// first).
func (c *Cluster) Chips() []chip.Chip {
	out := make([]chip.Chip, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.chips[id])
	}
	return out
}

// Chip returns the chip at logical id, if constructed.
func (c *Cluster) Chip(id int) (chip.Chip, bool) {
	ch, ok := c.chips[topology.ChipId(id)]
	return ch, ok
}

func selectChipIDs(desc *topology.ClusterDescriptor, target []int) []topology.ChipId {
	if len(target) == 0 {
		ids := make([]topology.ChipId, 0, len(desc.AllChips))
		for id := range desc.AllChips {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		return ids
	}
	ids := make([]topology.ChipId, 0, len(target))
	for _, t := range target {
		ids = append(ids, topology.ChipId(t))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// masksFor resolves the harvesting masks a chip should present, honoring
// PerformHarvesting, per-chip overrides, the cluster-wide override, and
// finally whatever live discovery measured (spec.md §6.5).
func (c *Cluster) masksFor(id topology.ChipId, discovered coord.HarvestingMasks) coord.HarvestingMasks {
	if !c.opts.PerformHarvesting {
		return coord.HarvestingMasks{}
	}
	if m, ok := c.opts.SimulatedHarvestingMasksPerChip[int(id)]; ok {
		return m
	}
	if c.opts.SimulatedHarvestingMasks != (coord.HarvestingMasks{}) {
		return c.opts.SimulatedHarvestingMasks
	}
	return discovered
}

func boardTypeFromChipInfo(info topology.ChipInfo) coord.BoardType { return info.BoardType }

// ensureMutexes creates (if absent) the named interprocess mutexes a
// device needs before anything touches it: on first construction for a
// given device index, per spec.md §4.10, not removed on Close since other
// processes may still hold them.
func (c *Cluster) ensureMutexes(deviceIndex int) error {
	for _, kind := range []lockmgr.MutexKind{lockmgr.ArcMsg, lockmgr.NonMMIO, lockmgr.MemBarrier} {
		h, err := c.locks.Lock(lockmgr.Key{Kind: kind, DeviceIndex: deviceIndex})
		if err != nil {
			return err
		}
		if err := c.locks.Unlock(h); err != nil {
			return err
		}
	}
	return nil
}

// remoteClockRegOffset mirrors the scratch-protocol telemetry response
// layout ttdevice's scratchArcMessenger and remote.SendArcMessage both use
// (scratchBase + 36-byte response header + word index): ClockMHz is word
// index 3 of the telemetry response, matching ttdevice.Telemetry.ClockMHz.
func remoteClockRegOffset(impl *arch.Impl) uint64 {
	return impl.ArcScratchBase + 36 + 3*4
}

// carrierFor finds, for a non-MMIO chip, the MMIO-adjacent neighbor that
// carries its traffic, that neighbor's own ChipId, and the local channel
// that trains to it — the same one-hop convention topology.LiveProber uses
// internally (DESIGN.md).
func (c *Cluster) carrierFor(id topology.ChipId) (carrierChipID topology.ChipId, pciIndex int, channel topology.Channel, err error) {
	for _, nb := range c.desc.Neighbors(id) {
		if c.desc.IsMMIO(nb.Chip) {
			return nb.Chip, c.desc.ChipsWithMMIO[nb.Chip], nb.Channel, nil
		}
	}
	return 0, 0, 0, errs.New(errs.KindTopologyError, "remote chip has no MMIO-adjacent carrier")
}

// teardown closes every chip constructed so far, in reverse order, used
// when construction fails partway through (spec.md §7 "partial
// construction is torn down in reverse order of acquisition").
func (c *Cluster) teardown() {
	for i := len(c.order) - 1; i >= 0; i-- {
		_ = c.chips[c.order[i]].Close()
	}
}

// New builds a Cluster: it runs live discovery via src unless
// opts.ClusterDescriptor is supplied, selects the chips opts.TargetDevices
// names (or every chip), and constructs local chips before remote ones so
// a remote chip can borrow its carrier's RemoteCommunication (spec.md
// §4.10).
func New(opts Options, src Source) (*Cluster, error) {
	if opts.ChipType != Silicon {
		return nil, errs.New(errs.KindUnsupportedOperation, "only ChipType Silicon is implemented")
	}
	if opts.IoDeviceType != PCIe {
		return nil, errs.New(errs.KindUnsupportedOperation, "only IoDeviceType PCIe is implemented; package jtag is a standalone bring-up transport not wired into cluster discovery")
	}
	if opts.LockDir == "" {
		opts.LockDir = DefaultOptions().LockDir
	}

	desc := opts.ClusterDescriptor
	if desc == nil {
		var err error
		desc, err = topology.Build(src)
		if err != nil {
			return nil, err
		}
	}

	c := &Cluster{
		opts:       opts,
		desc:       desc,
		locks:      lockmgr.New(opts.LockDir),
		chips:      make(map[topology.ChipId]chip.Chip),
		sysmemMgrs: make(map[topology.ChipId]*sysmem.SysmemManager),
		power:      make(map[topology.ChipId]PowerState),
	}

	ids := selectChipIDs(desc, opts.TargetDevices)
	var remoteIDs []topology.ChipId
	comms := make(map[int]*remote.RemoteCommunication)

	for _, id := range ids {
		if !desc.IsMMIO(id) {
			remoteIDs = append(remoteIDs, id)
			continue
		}
		pciIdx := desc.ChipsWithMMIO[id]
		dev, err := src.MMIODevice(pciIdx)
		if err != nil {
			c.teardown()
			return nil, err
		}

		masks := c.masksFor(id, desc.ChipInfos[id].HarvestingMasks)
		if masks != dev.Soc.Masks {
			soc, err := coord.NewSocDescriptor(dev.Soc.Arch, boardTypeFromChipInfo(desc.ChipInfos[id]), masks)
			if err != nil {
				c.teardown()
				return nil, err
			}
			dev.Soc = soc
		}

		if err := c.ensureMutexes(int(id)); err != nil {
			c.teardown()
			return nil, err
		}

		if opts.NumHostMemChannelsPerMMIODevice > 0 {
			c.sysmemMgrs[id] = sysmem.NewSysmemManager(dev.Kdev())
		}

		c.chips[id] = chip.NewLocalChip(int(id), dev, c.locks)
		c.order = append(c.order, id)
		c.power[id] = LongIdle
	}

	for _, id := range remoteIDs {
		carrierChipID, pciIdx, ch, err := c.carrierFor(id)
		if err != nil {
			c.teardown()
			return nil, err
		}
		rootDev, err := src.MMIODevice(pciIdx)
		if err != nil {
			c.teardown()
			return nil, err
		}

		comm, ok := comms[pciIdx]
		if !ok {
			comm, err = remote.NewRemoteCommunication(rootDev)
			if err != nil {
				c.teardown()
				return nil, err
			}
			comm.SetLockManager(c.locks, pciIdx)
			comms[pciIdx] = comm
		}

		carrierCore, err := rootDev.Soc.GetEthCoreForChannel(int(ch))
		if err != nil {
			c.teardown()
			return nil, err
		}

		masks := c.masksFor(id, desc.ChipInfos[id].HarvestingMasks)
		soc, err := coord.NewSocDescriptor(arch.WormholeB0, boardTypeFromChipInfo(desc.ChipInfos[id]), masks)
		if err != nil {
			c.teardown()
			return nil, err
		}

		if err := c.ensureMutexes(int(id)); err != nil {
			c.teardown()
			return nil, err
		}

		impl := arch.For(arch.WormholeB0)
		rc := chip.NewRemoteChip(int(id), soc, comm, carrierCore, uint8(ch), int(carrierChipID), impl.ResetRegOffset, remoteClockRegOffset(impl))
		c.chips[id] = rc
		c.order = append(c.order, id)
		c.power[id] = LongIdle
	}

	return c, nil
}

// Close tears every chip down in reverse construction order.
func (c *Cluster) Close() error {
	var first error
	for i := len(c.order) - 1; i >= 0; i-- {
		if err := c.chips[c.order[i]].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

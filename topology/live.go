package topology

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"umd/arch"
	"umd/coord"
	"umd/errs"
	"umd/kernel"
	"umd/remote"
	"umd/ttdevice"
)

// deviceIDToArch maps the PCI device ID the kernel driver reports to the
// arch this module builds an Impl for, grounded on the same vendor/device
// ID check controller.go's OpenDevice does before picking a backend
// (spec.md §4.9 step 1: "every PCIe endpoint of supported vendor/device
// IDs").
var deviceIDToArch = map[uint16]arch.Arch{
	0xfaca: arch.WormholeB0,
	0xb140: arch.Blackhole,
}

// SocDescriptorFor resolves the SocDescriptor a newly-opened chip should
// use, keyed by arch. Callers normally back this with the sdesc_path
// override (spec.md §6.5) and fall back to arch.For(a)'s default tables
// plus an unharvested mask when no override is present.
type SocDescriptorFor func(a arch.Arch) (*coord.SocDescriptor, error)

// LiveProber implements Prober against real hardware: MMIOEndpoints globs
// character devices under DeviceGlob and opens+initializes a TTDevice for
// each one found; ChipInfo and LinkTable answer from live ARC messaging,
// either directly against a local TTDevice or tunneled over a remote
// chip's ERISC carrier (spec.md §4.9).
//
// Remote resolution is one Ethernet hop deep only: a Reach whose Carrier
// is itself non-MMIO returns errs.UnsupportedOperation. CommandSlot has no
// chip-id field (spec.md §4.7), so this driver can only address a remote
// chip by (carrier core, rack byte) — multi-hop addressing would need the
// rack byte to double as a routing cookie the firmware understands, which
// is out of scope here (DESIGN.md). Build's graph algorithms themselves
// are hop-count agnostic; only this Prober implementation is limited.
type LiveProber struct {
	DeviceGlob string
	SocFor     SocDescriptorFor

	mu      sync.Mutex
	devices map[int]*ttdevice.TTDevice
	comms   map[int]*remote.RemoteCommunication
}

// NewLiveProber builds a Prober rooted at every character device matching
// deviceGlob (e.g. "/dev/tenstorrent/*").
func NewLiveProber(deviceGlob string, socFor SocDescriptorFor) *LiveProber {
	return &LiveProber{
		DeviceGlob: deviceGlob,
		SocFor:     socFor,
		devices:    make(map[int]*ttdevice.TTDevice),
		comms:      make(map[int]*remote.RemoteCommunication),
	}
}

func detectArch(path string) (arch.Arch, error) {
	kdev, err := kernel.OpenDevice(path)
	if err != nil {
		return 0, err
	}
	defer kdev.Close()
	info, err := kdev.GetPCIDeviceInfo()
	if err != nil {
		return 0, err
	}
	a, ok := deviceIDToArch[info.DeviceID]
	if !ok {
		return 0, errs.New(errs.KindTopologyError, fmt.Sprintf("%s: unsupported PCI device id 0x%04x", path, info.DeviceID))
	}
	return a, nil
}

// MMIOEndpoints enumerates every PCIe-reachable chip (spec.md §4.9 step 1).
func (p *LiveProber) MMIOEndpoints() ([]MMIOEndpoint, error) {
	paths, err := filepath.Glob(p.DeviceGlob)
	if err != nil {
		return nil, errs.Wrap(errs.KindIoError, "globbing device paths", err)
	}
	sort.Strings(paths)

	endpoints := make([]MMIOEndpoint, 0, len(paths))
	for i, path := range paths {
		a, err := detectArch(path)
		if err != nil {
			return nil, err
		}
		soc, err := p.SocFor(a)
		if err != nil {
			return nil, err
		}
		dev, err := ttdevice.Open(path, soc)
		if err != nil {
			return nil, err
		}
		if err := dev.Initialize(); err != nil {
			return nil, err
		}
		p.devices[i] = dev
		endpoints = append(endpoints, MMIOEndpoint{PCIIndex: i, Arch: a})
	}
	return endpoints, nil
}

// resolve walks a one-hop remote Reach back to its MMIO root and returns
// the local ERISC core that carries traffic to it, plus the rack byte
// this driver assigns to identify the hop (the CarrierChannel that
// trained to it, reused as the CommandSlot.Rack selector since nothing
// else distinguishes one remote neighbor from another on the wire).
func (p *LiveProber) resolve(r Reach) (root int, rootDev *ttdevice.TTDevice, carrier coord.CoreCoord, rack uint8, err error) {
	if r.Carrier == nil || r.Carrier.MMIO == nil {
		return 0, nil, coord.CoreCoord{}, 0, errs.New(errs.KindUnsupportedOperation,
			"live discovery only resolves chips one Ethernet hop from an MMIO endpoint")
	}
	root = r.Carrier.MMIO.PCIIndex
	rootDev = p.devices[root]
	carrier, err = rootDev.Soc.GetEthCoreForChannel(int(r.CarrierChannel))
	if err != nil {
		return 0, nil, coord.CoreCoord{}, 0, err
	}
	return root, rootDev, carrier, uint8(r.CarrierChannel), nil
}

func (p *LiveProber) commFor(root int, dev *ttdevice.TTDevice) (*remote.RemoteCommunication, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.comms[root]; ok {
		return c, nil
	}
	c, err := remote.NewRemoteCommunication(dev)
	if err != nil {
		return nil, err
	}
	p.comms[root] = c
	return c, nil
}

// remoteArcCoreAndScratch returns the ARC core coordinate and scratch base
// a tunneled ARC message should target. Every chip this driver can reach
// remotely runs the ERISC protocol (arch.Impl.SupportsRemote), which today
// is WormholeB0 only, so the remote peer's own arch.Impl constants apply
// regardless of which MMIO root carries the traffic.
func remoteArcCoreAndScratch() (coord.CoreCoord, uint64) {
	impl := arch.For(arch.WormholeB0)
	c := impl.DefaultArcCores[0]
	return coord.CoreCoord{X: c.X, Y: c.Y, Type: coord.Arc, System: coord.NOC0}, impl.ArcScratchBase
}

const remoteProbeTimeout = 2 * time.Second

func chipInfoFromIdentity(impl *arch.Impl, id ttdevice.Identity) ChipInfo {
	return ChipInfo{
		NocTranslationEnabled: id.NocTranslationEnabled,
		HarvestingMasks:       coord.HarvestingMasks{Tensix: coord.ShuffleHarvestingMask(impl, id.PhysicalTensixMask)},
		BoardType:             id.BoardType,
		BoardID:               id.BoardID,
		AsicLocation:          id.AsicLocation,
	}
}

func decodeRemoteIdentity(resp remote.ArcResponse) ttdevice.Identity {
	boardID := uint64(resp.Data[0]) | uint64(resp.Data[1])<<16 | uint64(resp.Data[2])<<32
	return ttdevice.Identity{
		BoardID:               boardID,
		BoardType:             coord.BoardType(resp.Data[3]),
		PhysicalTensixMask:    uint32(resp.Data[4]) | uint32(resp.Data[5])<<16,
		NocTranslationEnabled: resp.Data[6]&0x1 != 0,
		AsicLocation:          int(resp.Data[6] >> 1),
	}
}

func decodeRemotePosition(resp remote.ArcResponse) ttdevice.Position {
	return ttdevice.Position{
		Rack:  int(resp.Data[0]),
		Shelf: int(resp.Data[1]),
		X:     int(resp.Data[2]),
		Y:     int(resp.Data[3]),
	}
}

// ChipInfo resolves a Reach's identity, position, board id, and arch
// (spec.md §4.9 step 3).
func (p *LiveProber) ChipInfo(r Reach) (ChipInfo, EthCoord, uint64, arch.Arch, error) {
	if r.MMIO != nil {
		dev := p.devices[r.MMIO.PCIIndex]
		id, err := dev.Identity()
		if err != nil {
			return ChipInfo{}, EthCoord{}, 0, 0, err
		}
		pos, err := dev.Position()
		if err != nil {
			return ChipInfo{}, EthCoord{}, 0, 0, err
		}
		info := chipInfoFromIdentity(dev.Impl, id)
		loc := EthCoord{X: pos.X, Y: pos.Y, Rack: pos.Rack, Shelf: pos.Shelf}
		return info, loc, id.BoardID, r.MMIO.Arch, nil
	}

	root, rootDev, carrier, rack, err := p.resolve(r)
	if err != nil {
		return ChipInfo{}, EthCoord{}, 0, 0, err
	}
	comm, err := p.commFor(root, rootDev)
	if err != nil {
		return ChipInfo{}, EthCoord{}, 0, 0, err
	}
	arcCore, scratchBase := remoteArcCoreAndScratch()

	idResp, err := comm.SendArcMessage(carrier, rack, arcCore, scratchBase, ttdevice.OpGetIdentity, [7]uint16{}, remoteProbeTimeout)
	if err != nil {
		return ChipInfo{}, EthCoord{}, 0, 0, err
	}
	posResp, err := comm.SendArcMessage(carrier, rack, arcCore, scratchBase, ttdevice.OpGetPosition, [7]uint16{}, remoteProbeTimeout)
	if err != nil {
		return ChipInfo{}, EthCoord{}, 0, 0, err
	}

	id := decodeRemoteIdentity(idResp)
	pos := decodeRemotePosition(posResp)
	info := chipInfoFromIdentity(arch.For(arch.WormholeB0), id)
	loc := EthCoord{X: pos.X, Y: pos.Y, Rack: pos.Rack, Shelf: pos.Shelf}
	return info, loc, id.BoardID, arch.WormholeB0, nil
}

func convertLinkEntries(in []ttdevice.EthLinkEntry) []LinkEntry {
	out := make([]LinkEntry, len(in))
	for i, e := range in {
		out[i] = LinkEntry{Channel: Channel(e.Channel), Trained: e.Trained, RemoteBoardID: e.RemoteBoardID, RemoteChannel: Channel(e.RemoteChannel)}
	}
	return out
}

// LinkTable reads the live per-channel Ethernet training state for the
// chip at r (spec.md §4.9 step 2).
func (p *LiveProber) LinkTable(r Reach) ([]LinkEntry, error) {
	if r.MMIO != nil {
		dev := p.devices[r.MMIO.PCIIndex]
		entries, err := dev.EthLinkTable()
		if err != nil {
			return nil, err
		}
		return convertLinkEntries(entries), nil
	}

	root, rootDev, carrier, rack, err := p.resolve(r)
	if err != nil {
		return nil, err
	}
	comm, err := p.commFor(root, rootDev)
	if err != nil {
		return nil, err
	}
	arcCore, scratchBase := remoteArcCoreAndScratch()
	impl := arch.For(arch.WormholeB0)

	entries := make([]LinkEntry, 0, len(impl.DefaultEthCores))
	for i := range impl.DefaultEthCores {
		resp, err := comm.SendArcMessage(carrier, rack, arcCore, scratchBase, ttdevice.OpGetEthLink, [7]uint16{uint16(i)}, remoteProbeTimeout)
		if err != nil {
			return nil, err
		}
		entries = append(entries, LinkEntry{
			Channel:       Channel(i),
			Trained:       resp.Data[0] != 0,
			RemoteBoardID: uint64(resp.Data[1]) | uint64(resp.Data[2])<<16 | uint64(resp.Data[3])<<32,
			RemoteChannel: Channel(resp.Data[4]),
		})
	}
	return entries, nil
}

// MMIODevice returns the already-opened, already-initialized TTDevice for
// pciIndex, so package cluster can wrap it in a chip.LocalChip or build a
// remote.RemoteCommunication rooted at it without re-opening the character
// device.
func (p *LiveProber) MMIODevice(pciIndex int) (*ttdevice.TTDevice, error) {
	dev, ok := p.devices[pciIndex]
	if !ok {
		return nil, errs.New(errs.KindTopologyError, fmt.Sprintf("no MMIO device open at pci index %d", pciIndex))
	}
	return dev, nil
}

// Close releases every TTDevice this prober opened.
func (p *LiveProber) Close() error {
	var first error
	for _, dev := range p.devices {
		if err := dev.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

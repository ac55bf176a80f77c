package cluster

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"umd/arch"
	"umd/chip"
	"umd/coord"
	"umd/topology"
)

// fakeChip is a minimal chip.Chip for exercising Cluster's access/broadcast/
// power-lifecycle logic without a real TTDevice, the same in-package fake
// style topology/discovery_test.go uses for its fakeProber.
type fakeChip struct {
	id      int
	soc     *coord.SocDescriptor
	mem     map[string][]byte // "x,y"@offset -> bytes, keyed loosely for test assertions
	asserts int
	deasserts int
}

func newFakeChip(t *testing.T, id int) *fakeChip {
	t.Helper()
	soc, err := coord.NewSocDescriptor(arch.WormholeB0, coord.BoardN300, coord.HarvestingMasks{})
	require.NoError(t, err)
	return &fakeChip{id: id, soc: soc, mem: make(map[string][]byte)}
}

func (f *fakeChip) ID() int                   { return f.id }
func (f *fakeChip) Soc() *coord.SocDescriptor { return f.soc }

func memKey(core coord.CoreCoord, offset uint64) string {
	return fmt.Sprintf("%s/%d", core.String(), offset)
}

func (f *fakeChip) ReadFromDevice(core coord.CoreCoord, offset uint64, dst []byte) error {
	copy(dst, f.mem[memKey(core, offset)])
	return nil
}

func (f *fakeChip) WriteToDevice(core coord.CoreCoord, offset uint64, src []byte) error {
	buf := make([]byte, len(src))
	copy(buf, src)
	f.mem[memKey(core, offset)] = buf
	return nil
}

func (f *fakeChip) DeassertRiscResets() error { f.deasserts++; return nil }
func (f *fakeChip) AssertRiscResets() error   { f.asserts++; return nil }
func (f *fakeChip) GetClock() (uint32, error) { return 1000, nil }
func (f *fakeChip) MemBarrier() error         { return nil }
func (f *fakeChip) Close() error              { return nil }

func newTestCluster(t *testing.T, n int) *Cluster {
	t.Helper()
	c := &Cluster{
		chips: make(map[topology.ChipId]chip.Chip),
		power: make(map[topology.ChipId]PowerState),
	}
	for i := 0; i < n; i++ {
		id := topology.ChipId(i)
		c.chips[id] = newFakeChip(t, i)
		c.order = append(c.order, id)
		c.power[id] = LongIdle
	}
	return c
}

func TestClusterReadWriteRoundTrip(t *testing.T) {
	c := newTestCluster(t, 1)
	core := coord.CoreCoord{X: 1, Y: 1, Type: coord.Tensix, System: coord.Translated}

	require.NoError(t, c.WriteToDevice(0, core, 0x1000, []byte{1, 2, 3, 4}))
	got := make([]byte, 4)
	require.NoError(t, c.ReadFromDevice(0, core, 0x1000, got))
	require.Equal(t, []byte{1, 2, 3, 4}, got)
}

func TestClusterReadWriteUnknownChip(t *testing.T) {
	c := newTestCluster(t, 1)
	core := coord.CoreCoord{X: 1, Y: 1, Type: coord.Tensix, System: coord.Translated}
	require.Error(t, c.WriteToDevice(5, core, 0, []byte{1}))
}

func TestClusterReadWriteZeroLengthIsNoop(t *testing.T) {
	c := newTestCluster(t, 1)
	core := coord.CoreCoord{X: 1, Y: 1, Type: coord.Tensix, System: coord.Translated}
	require.NoError(t, c.WriteToDevice(9999, core, 0, nil))
	require.NoError(t, c.ReadFromDevice(9999, core, 0, nil))
}

func TestClusterBroadcastWriteRejectsNonTensixDram(t *testing.T) {
	c := newTestCluster(t, 1)
	err := c.BroadcastWrite(BroadcastOptions{CoreType: coord.Eth}, 0, []byte{1, 2, 3, 4})
	require.Error(t, err)
}

func TestClusterBroadcastWriteReachesEveryChip(t *testing.T) {
	c := newTestCluster(t, 3)
	data := []byte{0xEF, 0xBE, 0xAD, 0xDE}
	require.NoError(t, c.BroadcastWrite(BroadcastOptions{CoreType: coord.Tensix}, 0x1000, data))

	for _, id := range c.order {
		fc := c.chips[id].(*fakeChip)
		cores, err := fc.soc.GetCores(coord.Tensix, coord.Translated)
		require.NoError(t, err)
		require.NotEmpty(t, cores)
		got := make([]byte, 4)
		require.NoError(t, fc.ReadFromDevice(cores[0], 0x1000, got))
		require.Equal(t, data, got)
	}
}

func TestClusterBroadcastWriteHonorsExclusions(t *testing.T) {
	c := newTestCluster(t, 2)
	err := c.BroadcastWrite(BroadcastOptions{
		CoreType:     coord.Tensix,
		ChipsExclude: map[int]bool{1: true},
	}, 0x1000, []byte{1, 2, 3, 4})
	require.NoError(t, err)

	fc1 := c.chips[topology.ChipId(1)].(*fakeChip)
	require.Empty(t, fc1.mem)
}

func TestClusterStartAndCloseDeviceLifecycle(t *testing.T) {
	c := newTestCluster(t, 2)
	require.NoError(t, c.StartDevice())
	for _, id := range c.order {
		fc := c.chips[id].(*fakeChip)
		require.Equal(t, 1, fc.asserts)
		require.Equal(t, 1, fc.deasserts)
		p, ok := c.PowerState(int(id))
		require.True(t, ok)
		require.Equal(t, Busy, p)
	}

	require.NoError(t, c.CloseDevice())
	for _, id := range c.order {
		fc := c.chips[id].(*fakeChip)
		require.Equal(t, 2, fc.asserts)
		p, ok := c.PowerState(int(id))
		require.True(t, ok)
		require.Equal(t, LongIdle, p)
	}
}

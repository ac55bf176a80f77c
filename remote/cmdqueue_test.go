package remote

import (
	"testing"

	"github.com/stretchr/testify/require"

	"umd/arch"
	"umd/ttdevice"
)

func TestCommandSlotRoundTrip(t *testing.T) {
	slot := CommandSlot{
		SysAddr: 0xDEADBEEFCAFE, Data: 42, Flags: FlagWrite | FlagBlockMode,
		Rack: 3, SrcRespBufIndex: 1, LocalBufIndex: 2, SrcRespQId: 4,
		HostMemTxnID: 99, SrcAddrTag: 7,
	}
	got := DecodeCommandSlot(slot.Encode())
	require.Equal(t, slot, got)
}

func TestNewRemoteCommunicationRejectsBlackhole(t *testing.T) {
	dev := &ttdevice.TTDevice{Impl: arch.For(arch.Blackhole)}
	_, err := NewRemoteCommunication(dev)
	require.Error(t, err)
}

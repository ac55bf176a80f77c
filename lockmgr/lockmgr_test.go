package lockmgr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTryLockFailsWhileHeld(t *testing.T) {
	dir := t.TempDir()
	m := New(dir)

	h, err := m.Lock(Key{Kind: ArcMsg, DeviceIndex: 0})
	require.NoError(t, err)

	_, err = m.TryLock(Key{Kind: ArcMsg, DeviceIndex: 0})
	require.Error(t, err)

	require.NoError(t, m.Unlock(h))

	h2, err := m.TryLock(Key{Kind: ArcMsg, DeviceIndex: 0})
	require.NoError(t, err)
	require.NoError(t, m.Unlock(h2))
}

func TestDistinctKeysDoNotContend(t *testing.T) {
	dir := t.TempDir()
	m := New(dir)

	h1, err := m.Lock(Key{Kind: ArcMsg, DeviceIndex: 0})
	require.NoError(t, err)
	h2, err := m.Lock(Key{Kind: NonMMIO, DeviceIndex: 0})
	require.NoError(t, err)

	require.NoError(t, m.Unlock(h1))
	require.NoError(t, m.Unlock(h2))
}

func TestTlbLocksAreIndexed(t *testing.T) {
	dir := t.TempDir()
	m := New(dir)

	h1, err := m.Lock(Key{Kind: Tlb, DeviceIndex: 0, TlbIndex: 1})
	require.NoError(t, err)
	h2, err := m.Lock(Key{Kind: Tlb, DeviceIndex: 0, TlbIndex: 2})
	require.NoError(t, err)

	require.NoError(t, m.Unlock(h1))
	require.NoError(t, m.Unlock(h2))
}

// Package lockmgr implements the interprocess-robust named mutexes every
// multi-process-safe operation in this driver takes before touching
// shared hardware state: ARC messaging, the remote (non-MMIO) path, the
// host/device memory barrier, and each TLB window (spec.md §4.3). Locks
// are keyed by (MutexKind, device index[, TLB index]) and held via
// flock(2), grounded on canonical-snapd's osutil.NewFileLock usage
// (cmd/snaplock/runinhibit/inhibit_test.go, cmd/snap-repair/cmd_run_test.go)
// for interprocess file locking.
package lockmgr

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"

	"umd/errs"
)

// MutexKind identifies which shared resource a lock protects.
type MutexKind int

const (
	ArcMsg MutexKind = iota
	RemoteArcMsg
	NonMMIO
	MemBarrier
	Tlb
)

func (k MutexKind) String() string {
	switch k {
	case ArcMsg:
		return "arc_msg"
	case RemoteArcMsg:
		return "remote_arc_msg"
	case NonMMIO:
		return "non_mmio"
	case MemBarrier:
		return "mem_barrier"
	case Tlb:
		return "tlb"
	default:
		return "unknown"
	}
}

// Key identifies one named mutex. TlbIndex is only meaningful when Kind is
// Tlb (one lock per TLB window, since windows are independently
// reconfigurable and shouldn't serialize against each other).
type Key struct {
	Kind        MutexKind
	DeviceIndex int
	TlbIndex    int
}

func (k Key) path(dir string) string {
	if k.Kind == Tlb {
		return filepath.Join(dir, fmt.Sprintf("umd-dev%d-tlb%d.lock", k.DeviceIndex, k.TlbIndex))
	}
	return filepath.Join(dir, fmt.Sprintf("umd-dev%d-%s.lock", k.DeviceIndex, k.Kind))
}

// LockManager hands out Handles for named mutexes rooted at the directory
// given to New (cluster.DefaultOptions uses /var/lock/umd), so any process
// opening the same device with the same directory sees the same locks.
type LockManager struct {
	dir string

	mu     sync.Mutex
	active map[Key]*Handle
}

// New builds a LockManager rooted at dir. dir must be a directory every
// cooperating process can write to (spec.md §4.3 assumes this driver and
// its peers run as the same user or a shared device group).
func New(dir string) *LockManager {
	return &LockManager{dir: dir, active: make(map[Key]*Handle)}
}

// Handle is one acquired named mutex. Unlock releases it; the handle must
// not be reused afterward.
type Handle struct {
	key  Key
	file *os.File
}

// Lock blocks until the named mutex is acquired. If the previous holder's
// process died while holding it, flock(2)'s kernel-tracked per-open-file
// lock table releases the lock automatically when that process's file
// descriptors close — there is no stale on-disk lock state to detect or
// repair, unlike a robust pthread mutex. This is spec.md §4.3's Open
// Question resolution (see DESIGN.md): rely on the kernel rather than
// emulate OwnerDead recovery in userspace.
func (m *LockManager) Lock(key Key) (*Handle, error) {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return nil, errs.Wrap(errs.KindIoError, "creating lock directory", err)
	}
	f, err := os.OpenFile(key.path(m.dir), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, errs.Wrap(errs.KindIoError, "opening lock file", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		_ = f.Close()
		return nil, errs.Wrap(errs.KindMutexOwnerDead, "flock", err)
	}
	h := &Handle{key: key, file: f}

	m.mu.Lock()
	m.active[key] = h
	m.mu.Unlock()
	return h, nil
}

// TryLock attempts to acquire the named mutex without blocking, returning
// errs.Timeout if it is currently held elsewhere.
func (m *LockManager) TryLock(key Key) (*Handle, error) {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return nil, errs.Wrap(errs.KindIoError, "creating lock directory", err)
	}
	f, err := os.OpenFile(key.path(m.dir), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, errs.Wrap(errs.KindIoError, "opening lock file", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, errs.New(errs.KindTimeout, "lock held by another process")
		}
		return nil, errs.Wrap(errs.KindIoError, "flock", err)
	}
	h := &Handle{key: key, file: f}

	m.mu.Lock()
	m.active[key] = h
	m.mu.Unlock()
	return h, nil
}

// Unlock releases the named mutex.
func (m *LockManager) Unlock(h *Handle) error {
	if h == nil {
		return nil
	}
	m.mu.Lock()
	delete(m.active, h.key)
	m.mu.Unlock()

	if err := unix.Flock(int(h.file.Fd()), unix.LOCK_UN); err != nil {
		_ = h.file.Close()
		return errs.Wrap(errs.KindIoError, "unflock", err)
	}
	return h.file.Close()
}

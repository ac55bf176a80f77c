package tlb

import (
	"umd/arch"
	"umd/errs"
)

// Reconfigure points this window at a new NOC-relative address. If the
// window is already configured for this exact (address, mapping, ordering)
// triple the ioctl is skipped — the cached-window-per-device optimization
// spec.md §4.2 calls for, since reconfiguring on every access would make
// the ARC scratch-register ping-pong protocol in package ttdevice
// dominate every transfer's latency.
//
// Reconfigure alone does not hold the window's lock across the access that
// follows it; callers sharing a window across goroutines (ttdevice's cached
// per-device window, spec.md §4.2/§9) must use ConfigureAndRead/
// ConfigureAndWrite instead, which make reconfigure+access one critical
// section.
func (w *Window) Reconfigure(address uint64, mapping arch.TlbMapping, ordering arch.TlbOrdering) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reconfigureLocked(address, mapping, ordering)
}

func (w *Window) reconfigureLocked(address uint64, mapping arch.TlbMapping, ordering arch.TlbOrdering) error {
	if w.configured && w.currentAddr == address && w.mapping == mapping && w.ordering == ordering {
		return nil
	}
	if err := w.a.dev.ConfigureTlb(w.handle, address, mapping, ordering); err != nil {
		return err
	}
	w.configured = true
	w.currentAddr = address
	w.mapping = mapping
	w.ordering = ordering
	return nil
}

// ReadBlock copies len(dst) bytes from the window's current aperture,
// starting at byte offset within the window, into dst.
func (w *Window) ReadBlock(offset uint64, dst []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.readBlockLocked(offset, dst)
}

func (w *Window) readBlockLocked(offset uint64, dst []byte) error {
	if !w.configured {
		return errs.New(errs.KindInvalidAddress, "tlb window not configured")
	}
	if offset+uint64(len(dst)) > w.size {
		return errs.New(errs.KindInvalidAddress, "read exceeds tlb window size")
	}
	mem := w.bar.Bytes()
	start := w.barOffset + offset
	copy(dst, mem[start:start+uint64(len(dst))])
	return nil
}

// WriteBlock copies src into the window's current aperture at byte offset.
func (w *Window) WriteBlock(offset uint64, src []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writeBlockLocked(offset, src)
}

func (w *Window) writeBlockLocked(offset uint64, src []byte) error {
	if !w.configured {
		return errs.New(errs.KindInvalidAddress, "tlb window not configured")
	}
	if offset+uint64(len(src)) > w.size {
		return errs.New(errs.KindInvalidAddress, "write exceeds tlb window size")
	}
	mem := w.bar.Bytes()
	start := w.barOffset + offset
	copy(mem[start:start+uint64(len(src))], src)
	return nil
}

// ConfigureAndRead reconfigures the window to (address, mapping, ordering)
// and reads len(dst) bytes from aperture offset 0, as one critical section.
// This is the only safe way to use a window shared across goroutines
// (spec.md §4.2 "the reconfigure must be under a lock" / §9 "the driver
// *must* serialize reconfigure+access"): without a combined lock, a second
// goroutine sharing the same cached window can reconfigure it to a
// different core between this call's reconfigure and its read.
func (w *Window) ConfigureAndRead(address uint64, mapping arch.TlbMapping, ordering arch.TlbOrdering, dst []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.reconfigureLocked(address, mapping, ordering); err != nil {
		return err
	}
	return w.readBlockLocked(0, dst)
}

// ConfigureAndWrite is the write-direction counterpart of ConfigureAndRead.
func (w *Window) ConfigureAndWrite(address uint64, mapping arch.TlbMapping, ordering arch.TlbOrdering, src []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.reconfigureLocked(address, mapping, ordering); err != nil {
		return err
	}
	return w.writeBlockLocked(0, src)
}

package ttdevice

import (
	"fmt"

	"github.com/cilium/ebpf/ringbuf"
	"github.com/cilium/ebpf/rlimit"

	"umd/errs"
)

// HangEvent is one hang-detection sample the tracer's ring buffer reader
// delivers: a timestamped register snapshot (CheckHang does not emit these
// itself), so a postmortem can see how long the chip had been unresponsive and
// what the reset register last read as (spec.md §4.1's optional tracing
// hook, grounded on eBPF_driver.go's NonceEvent ring-buffer delivery
// shape).
type HangEvent struct {
	TimestampNs uint64
	RegisterVal uint32
}

// hangObjects mirrors eBPF_driver.go's BpfObjects: the loader is a stub
// here too, since this module ships no compiled BPF object — attaching a
// real probe to PCIe interrupt/poll paths requires a kernel-side program
// this user-space driver doesn't own the build for. NewTracer discards
// whatever the loader returns and creates no ringbuf.Reader, so on every
// Tracer it builds Events returns nil, nil and Close is a no-op.
type hangObjects struct {
	events *ringbufMapStub
}

// ringbufMapStub stands in for the compiled map handle a real
// ebpf.CollectionSpec would produce; it has no fields or methods.
type ringbufMapStub struct{}

// Tracer is an optional hang-event tracer attached to a TTDevice.
// Grounded on eBPF_driver.go's EBPFDriver: rlimit.RemoveMemlock up front,
// a stub program loader, and a ringbuf.Reader field that NewTracer leaves
// nil.
type Tracer struct {
	reader *ringbuf.Reader
}

// NewTracer attaches a hang-event tracer. Loading the actual BPF program
// is left to the caller-supplied loader hook (loadProgram); this mirrors
// eBPF_driver.go's LoadBpfObjects stub, which also returns before doing
// real ELF loading.
func NewTracer(loadProgram func() (*hangObjects, error)) (*Tracer, error) {
	if err := rlimit.RemoveMemlock(); err != nil {
		return nil, errs.Wrap(errs.KindIoError, "removing memlock rlimit for ebpf maps", err)
	}
	objs, err := loadProgram()
	if err != nil {
		return nil, errs.Wrap(errs.KindIoError, "loading hang-tracer bpf program", err)
	}
	_ = objs
	// A real deployment passes the loaded ringbuf map's *ebpf.Map here;
	// without a compiled object there is nothing to read from yet.
	return &Tracer{}, nil
}

// Close releases the ring buffer reader, if one was attached.
func (t *Tracer) Close() error {
	if t.reader == nil {
		return nil
	}
	return t.reader.Close()
}

// Events drains available hang events without blocking past whatever the
// caller's context allows; returns nil, nil if no tracer is attached.
func (t *Tracer) Events() ([]HangEvent, error) {
	if t.reader == nil {
		return nil, nil
	}
	var out []HangEvent
	for {
		rec, err := t.reader.Read()
		if err != nil {
			if err == ringbuf.ErrClosed {
				return out, nil
			}
			return out, errs.Wrap(errs.KindIoError, fmt.Sprintf("reading hang-tracer ringbuf (have %d)", len(out)), err)
		}
		if len(rec.RawSample) < 12 {
			continue
		}
		out = append(out, decodeHangEvent(rec.RawSample))
	}
}

func decodeHangEvent(raw []byte) HangEvent {
	var e HangEvent
	e.TimestampNs = uint64(raw[0]) | uint64(raw[1])<<8 | uint64(raw[2])<<16 | uint64(raw[3])<<24 |
		uint64(raw[4])<<32 | uint64(raw[5])<<40 | uint64(raw[6])<<48 | uint64(raw[7])<<56
	e.RegisterVal = uint32(raw[8]) | uint32(raw[9])<<8 | uint32(raw[10])<<16 | uint32(raw[11])<<24
	return e
}

package cluster

// PowerState is a chip's ARC-reported power/idle state (spec.md §4.10).
// ShortIdle sits between consecutive operations on the same chip in the
// original implementation; this driver carries the enum value for
// interface parity but nothing here currently transitions a chip into it
// (SPEC_FULL.md §4) — only start_device/close_device's Busy/LongIdle
// transitions are wired.
type PowerState int

const (
	Busy PowerState = iota
	ShortIdle
	LongIdle
)

func (s PowerState) String() string {
	switch s {
	case Busy:
		return "busy"
	case ShortIdle:
		return "short_idle"
	case LongIdle:
		return "long_idle"
	default:
		return "unknown"
	}
}

package cluster

import (
	"os"
	"strconv"
	"strings"

	"umd/coord"
	"umd/topology"
)

// ChipType selects what backs each chip in the cluster (spec.md §6.5).
// Mock and Simulation are accepted as valid values but this driver only
// implements Silicon end to end — constructing with either returns
// errs.UnsupportedOperation, documented in DESIGN.md as out of scope
// rather than silently behaving like Silicon.
type ChipType int

const (
	Silicon ChipType = iota
	Mock
	Simulation
)

// IoDeviceType selects the local transport backing MMIO-capable chips
// (spec.md §1, §6.5).
type IoDeviceType int

const (
	PCIe IoDeviceType = iota
	Jtag
)

// Options configures Cluster construction (spec.md §6.5). Recognized
// fields are exhaustive; there is no catch-all map for unlisted knobs.
type Options struct {
	// TargetDevices restricts construction to this set of logical ids.
	// Empty means every chip in the discovered descriptor.
	TargetDevices []int

	// NumHostMemChannelsPerMMIODevice is 0..4; 0 disables sysmem.
	NumHostMemChannelsPerMMIODevice int

	// SimulatedHarvestingMasks applies to every chip unless overridden by
	// SimulatedHarvestingMasksPerChip.
	SimulatedHarvestingMasks        coord.HarvestingMasks
	SimulatedHarvestingMasksPerChip map[int]coord.HarvestingMasks

	ChipType     ChipType
	SdescPath    string
	IoDeviceType IoDeviceType

	// PerformHarvesting, if false, makes every chip behave as if
	// unharvested regardless of live telemetry or simulated masks above —
	// used for diagnostics (spec.md §6.5).
	PerformHarvesting bool

	// ClusterDescriptor, if set, is used as-is instead of running live
	// discovery.
	ClusterDescriptor *topology.ClusterDescriptor

	// LockDir roots the interprocess named mutexes (spec.md §4.3); callers
	// sharing a device must use the same directory.
	LockDir string
}

// DefaultOptions returns every chip, sysmem disabled, live harvesting
// applied, PCIe transport, robust locks rooted at /var/lock/umd — the
// baseline spec.md §6.5 describes before any override.
func DefaultOptions() Options {
	return Options{PerformHarvesting: true, LockDir: "/var/lock/umd"}
}

// ApplyEnvOverrides layers environment-variable overrides onto opts, the
// same env-over-explicit-config shape internal/config's LoadDeviceConfig
// used for DEVICE_IP/DEVICE_PASSWORD/DEVICE_USERNAME: an already-set field
// wins over its environment variable, so callers can pin a field via flag
// or explicit construction and only let the environment fill in the rest.
// Recognized variables: TT_SDESC_PATH, TT_TARGET_DEVICES (comma-separated
// logical ids), TT_LOCK_DIR, TT_HOST_MEM_CHANNELS.
func ApplyEnvOverrides(opts Options) Options {
	if opts.SdescPath == "" {
		if v := os.Getenv("TT_SDESC_PATH"); v != "" {
			opts.SdescPath = v
		}
	}
	if len(opts.TargetDevices) == 0 {
		if v := os.Getenv("TT_TARGET_DEVICES"); v != "" {
			opts.TargetDevices = parseIntList(v)
		}
	}
	if opts.LockDir == "" {
		if v := os.Getenv("TT_LOCK_DIR"); v != "" {
			opts.LockDir = v
		}
	}
	if opts.NumHostMemChannelsPerMMIODevice == 0 {
		if v := os.Getenv("TT_HOST_MEM_CHANNELS"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				opts.NumHostMemChannelsPerMMIODevice = n
			}
		}
	}
	return opts
}

func parseIntList(s string) []int {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if n, err := strconv.Atoi(part); err == nil {
			out = append(out, n)
		}
	}
	return out
}

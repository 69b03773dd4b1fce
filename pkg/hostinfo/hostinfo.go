// Package hostinfo gathers best-effort host telemetry for heartbeat
// documents. Everything here is informational: collection failures degrade
// to zero values and never affect liveness.
package hostinfo

import (
	"os"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Snapshot is one point-in-time view of the host.
type Snapshot struct {
	Hostname   string
	CPUPercent float64
	MemPercent float64
}

// Collect returns the current snapshot. It never blocks on sampling
// windows; the CPU reading is the instantaneous gauge.
func Collect() *Snapshot {
	snap := &Snapshot{}

	if hostname, err := os.Hostname(); err == nil {
		snap.Hostname = hostname
	}

	if v, err := mem.VirtualMemory(); err == nil {
		snap.MemPercent = v.UsedPercent
	}

	// Zero interval returns the immediate value instead of sampling.
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		snap.CPUPercent = pct[0]
	}

	return snap
}

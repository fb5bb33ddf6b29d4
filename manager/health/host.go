package health

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostHealth is the manager's own host-level health payload.
type HostHealth struct {
	Uptime       uint64     `json:"uptime"`
	Loadavg      [3]float64 `json:"loadavg"`
	CPUs         int        `json:"cpus"`
	MemTotal     uint64     `json:"mem_total"`
	MemAvailable uint64     `json:"mem_available"`
}

// SelfCheck returns the local manager host's health payload.
func (a *Aggregator) SelfCheck(ctx context.Context) (HostHealth, error) {
	var h HostHealth

	uptime, err := host.UptimeWithContext(ctx)
	if err != nil {
		return h, errors.Wrap(err, "health: error reading host uptime")
	}
	avg, err := load.AvgWithContext(ctx)
	if err != nil {
		return h, errors.Wrap(err, "health: error reading load average")
	}
	cpus, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return h, errors.Wrap(err, "health: error counting cpus")
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return h, errors.Wrap(err, "health: error reading memory")
	}

	h.Uptime = uptime
	h.Loadavg = [3]float64{avg.Load1, avg.Load5, avg.Load15}
	h.CPUs = cpus
	h.MemTotal = vm.Total
	h.MemAvailable = vm.Available
	return h, nil
}

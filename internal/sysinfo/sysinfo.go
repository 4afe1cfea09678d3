// Package sysinfo reports instantaneous host resource metrics for the
// dashboard's status and metrics endpoints.
package sysinfo

import (
	"context"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"
)

// Metrics is a point-in-time snapshot of host resource usage. Percentages
// are in the range 0-100; network counters are cumulative per interface.
type Metrics struct {
	CPUUsage    float64                       `json:"cpu_usage"`
	MemoryUsage float64                       `json:"memory_usage"`
	DiskUsage   float64                       `json:"disk_usage"`
	Network     map[string]net.IOCountersStat `json:"network"`
}

// Collect gathers a Metrics snapshot. Collection is best effort: a failing
// collector leaves its fields zeroed and the first failure is returned for
// logging, with the snapshot still usable.
func Collect(ctx context.Context) (Metrics, error) {
	var firstErr error

	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	metrics := Metrics{Network: make(map[string]net.IOCountersStat)}

	percents, err := cpu.PercentWithContext(ctx, 0, false)
	keep(err)

	if len(percents) > 0 {
		metrics.CPUUsage = percents[0]
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		keep(err)
	} else {
		metrics.MemoryUsage = vm.UsedPercent
	}

	if usage, err := disk.UsageWithContext(ctx, "/"); err != nil {
		keep(err)
	} else {
		metrics.DiskUsage = usage.UsedPercent
	}

	counters, err := net.IOCountersWithContext(ctx, true)
	keep(err)

	for _, counter := range counters {
		metrics.Network[counter.Name] = counter
	}

	return metrics, firstErr
}

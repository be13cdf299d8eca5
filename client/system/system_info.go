package system

import (
	"context"
	"sync"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
)

// SysInfo is the view of OS metric counters the metric collector consumes.
type SysInfo interface {
	CPUPercent(ctx context.Context) (float64, error)
	CPUFrequency(ctx context.Context) (float64, error)
	MemoryStats(ctx context.Context) (*mem.VirtualMemoryStat, error)
	SwapStats(ctx context.Context) (*mem.SwapMemoryStat, error)
	Partitions(ctx context.Context) ([]disk.PartitionStat, error)
	DiskUsage(ctx context.Context, mountpoint string) (*disk.UsageStat, error)
	DiskIOCounters(ctx context.Context) (map[string]disk.IOCountersStat, error)
	NetInterfaces(ctx context.Context) (net.InterfaceStatList, error)
	NetIOCounters(ctx context.Context) ([]net.IOCountersStat, error)
}

type realSystemInfo struct {
	freqOnce sync.Once
	freq     float64
	freqErr  error
}

func NewSystemInfo() SysInfo {
	return &realSystemInfo{}
}

// CPUPercent returns the combined usage since the previous call.
func (s *realSystemInfo) CPUPercent(ctx context.Context) (float64, error) {
	percentCPU := 0.0
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return percentCPU, err
	}

	if len(percents) == 1 {
		percentCPU = percents[0]
	}
	return percentCPU, err
}

// CPUFrequency returns the nominal frequency of the first CPU in MHz. cpu.Info parses
// /proc/cpuinfo or WMI, so the value is read once.
func (s *realSystemInfo) CPUFrequency(ctx context.Context) (float64, error) {
	s.freqOnce.Do(func() {
		infos, err := cpu.InfoWithContext(ctx)
		if err != nil {
			s.freqErr = err
			return
		}
		if len(infos) > 0 {
			s.freq = infos[0].Mhz
		}
	})
	return s.freq, s.freqErr
}

func (s *realSystemInfo) MemoryStats(ctx context.Context) (*mem.VirtualMemoryStat, error) {
	return mem.VirtualMemoryWithContext(ctx)
}

func (s *realSystemInfo) SwapStats(ctx context.Context) (*mem.SwapMemoryStat, error) {
	return mem.SwapMemoryWithContext(ctx)
}

func (s *realSystemInfo) Partitions(ctx context.Context) ([]disk.PartitionStat, error) {
	return disk.PartitionsWithContext(ctx, false)
}

func (s *realSystemInfo) DiskUsage(ctx context.Context, mountpoint string) (*disk.UsageStat, error) {
	return disk.UsageWithContext(ctx, mountpoint)
}

func (s *realSystemInfo) DiskIOCounters(ctx context.Context) (map[string]disk.IOCountersStat, error) {
	return disk.IOCountersWithContext(ctx)
}

func (s *realSystemInfo) NetInterfaces(ctx context.Context) (net.InterfaceStatList, error) {
	return net.InterfacesWithContext(ctx)
}

func (s *realSystemInfo) NetIOCounters(ctx context.Context) ([]net.IOCountersStat, error) {
	return net.IOCountersWithContext(ctx, true)
}

package system

import (
	"context"
	"sync"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
)

type MockSystemInfo struct {
	mu sync.Mutex

	ReturnCPUPercent          float64
	ReturnCPUPercentError     error
	ReturnCPUFrequency        float64
	ReturnCPUFrequencyError   error
	ReturnMemoryStat          *mem.VirtualMemoryStat
	ReturnMemoryError         error
	ReturnSwapStat            *mem.SwapMemoryStat
	ReturnSwapError           error
	ReturnPartitions          []disk.PartitionStat
	ReturnPartitionsError     error
	ReturnDiskUsage           map[string]*disk.UsageStat
	ReturnDiskIOCounters      map[string]disk.IOCountersStat
	ReturnDiskIOCountersError error
	ReturnNetInterfaces       net.InterfaceStatList
	ReturnNetInterfacesError  error
	ReturnNetIOCounters       []net.IOCountersStat
	ReturnNetIOCountersError  error
}

func (s *MockSystemInfo) CPUPercent(ctx context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ReturnCPUPercent, s.ReturnCPUPercentError
}

func (s *MockSystemInfo) CPUFrequency(ctx context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ReturnCPUFrequency, s.ReturnCPUFrequencyError
}

func (s *MockSystemInfo) MemoryStats(ctx context.Context) (*mem.VirtualMemoryStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ReturnMemoryStat, s.ReturnMemoryError
}

func (s *MockSystemInfo) SwapStats(ctx context.Context) (*mem.SwapMemoryStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ReturnSwapStat, s.ReturnSwapError
}

func (s *MockSystemInfo) Partitions(ctx context.Context) ([]disk.PartitionStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ReturnPartitions, s.ReturnPartitionsError
}

func (s *MockSystemInfo) DiskUsage(ctx context.Context, mountpoint string) (*disk.UsageStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	usage, ok := s.ReturnDiskUsage[mountpoint]
	if !ok {
		return nil, context.DeadlineExceeded
	}
	return usage, nil
}

func (s *MockSystemInfo) DiskIOCounters(ctx context.Context) (map[string]disk.IOCountersStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ReturnDiskIOCounters, s.ReturnDiskIOCountersError
}

func (s *MockSystemInfo) NetInterfaces(ctx context.Context) (net.InterfaceStatList, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ReturnNetInterfaces, s.ReturnNetInterfacesError
}

func (s *MockSystemInfo) NetIOCounters(ctx context.Context) ([]net.IOCountersStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ReturnNetIOCounters, s.ReturnNetIOCountersError
}

// Update mutates the mock under its lock, for tests that change counters between calls.
func (s *MockSystemInfo) Update(fn func(m *MockSystemInfo)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

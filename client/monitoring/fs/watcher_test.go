package fs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrport/rguard/client/system"
	"github.com/openrport/rguard/share/logger"
	"github.com/openrport/rguard/share/models"
)

func newTestWatcher(cfg FileSystemWatcherConfig, si *system.MockSystemInfo, now *time.Time) *FileSystemWatcher {
	w := NewWatcher(cfg, si, logger.NewDiscardLogger())
	w.now = func() time.Time { return *now }
	return w
}

func testSystemInfo() *system.MockSystemInfo {
	return &system.MockSystemInfo{
		ReturnPartitions: []disk.PartitionStat{
			{Device: "/dev/sda1", Mountpoint: "/", Fstype: "ext4"},
			{Device: "/dev/sda2", Mountpoint: "/boot/efi", Fstype: "vfat"},
			{Device: "tmpfs", Mountpoint: "/run", Fstype: "tmpfs"},
			{Device: "/dev/sda1", Mountpoint: "/var/lib/docker", Fstype: "ext4"},
			{Device: "server:/export", Mountpoint: "/mnt/nfs", Fstype: "nfs"},
		},
		ReturnDiskUsage: map[string]*disk.UsageStat{
			"/":               {Used: 100, Total: 1000},
			"/boot/efi":       {Used: 10, Total: 500},
			"/run":            {Used: 1, Total: 2},
			"/var/lib/docker": {Used: 100, Total: 1000},
			"/mnt/nfs":        {Used: 7, Total: 70},
		},
		ReturnDiskIOCounters: map[string]disk.IOCountersStat{
			"sda1": {ReadBytes: 1000, WriteBytes: 1000},
			"sda2": {ReadBytes: 50, WriteBytes: 0},
		},
	}
}

func TestResultsFiltersAndRates(t *testing.T) {
	si := testSystemInfo()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	w := newTestWatcher(FileSystemWatcherConfig{
		TypeInclude:                 []string{"EXT4", "vfat", "nfs"},
		PathExclude:                 []string{"/boot/*"},
		IdentifyMountpointsByDevice: true,
	}, si, &now)

	got, err := w.Results(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.DiskUsage{
		{Mount: "/", FSType: "ext4", Used: 100, Total: 1000},
		{Mount: "/mnt/nfs", FSType: "nfs", Used: 7, Total: 70},
	}, got)

	now = now.Add(2 * time.Second)
	si.Update(func(m *system.MockSystemInfo) {
		m.ReturnDiskIOCounters = map[string]disk.IOCountersStat{
			"sda1": {ReadBytes: 3000, WriteBytes: 5000},
		}
	})

	got, err = w.Results(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1000.0+2000.0, got[0].IORate)
	assert.Equal(t, 0.0, got[1].IORate)
}

func TestResultsCounterReset(t *testing.T) {
	si := testSystemInfo()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	w := newTestWatcher(FileSystemWatcherConfig{TypeInclude: []string{"ext4"}}, si, &now)

	_, err := w.Results(context.Background())
	require.NoError(t, err)

	now = now.Add(time.Second)
	si.Update(func(m *system.MockSystemInfo) {
		m.ReturnDiskIOCounters = map[string]disk.IOCountersStat{
			"sda1": {ReadBytes: 10, WriteBytes: 1500},
		}
	})
	got, err := w.Results(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 500.0, got[0].IORate)
}

func TestResultsRecursiveExclude(t *testing.T) {
	si := testSystemInfo()
	now := time.Now()
	w := newTestWatcher(FileSystemWatcherConfig{
		PathExclude:        []string{"/var", "/run", "/mnt"},
		PathExcludeRecurse: true,
	}, si, &now)

	got, err := w.Results(context.Background())
	require.NoError(t, err)
	mounts := []string{}
	for _, d := range got {
		mounts = append(mounts, d.Mount)
	}
	assert.Equal(t, []string{"/", "/boot/efi"}, mounts)
}

func TestResultsPartialFailure(t *testing.T) {
	si := testSystemInfo()
	si.ReturnDiskIOCounters = nil
	si.ReturnDiskIOCountersError = errors.New("no diskstats")
	delete(si.ReturnDiskUsage, "/boot/efi")
	now := time.Now()
	w := newTestWatcher(FileSystemWatcherConfig{TypeInclude: []string{"ext4", "vfat"}}, si, &now)

	got, err := w.Results(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read IO counters")
	assert.Contains(t, err.Error(), `failed to get usage info for "/boot/efi"`)
	assert.Len(t, got, 2)
}

func TestResultsPartitionsError(t *testing.T) {
	si := &system.MockSystemInfo{ReturnPartitionsError: errors.New("denied")}
	now := time.Now()
	w := newTestWatcher(FileSystemWatcherConfig{}, si, &now)

	got, err := w.Results(context.Background())
	assert.EqualError(t, err, "failed to read partitions: denied")
	assert.Nil(t, got)
}

func TestIOCountersKey(t *testing.T) {
	assert.Equal(t, "sda1", ioCountersKey("/dev/sda1"))
	assert.Equal(t, "vg-root", ioCountersKey("/dev/mapper/vg-root"))
	assert.Equal(t, "C:", ioCountersKey("C:"))
}

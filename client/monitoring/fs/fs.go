package fs

import (
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/openrport/rguard/client/monitoring/helper"
)

const fsInfoRequestTimeout = time.Second * 10

// DefaultTypeInclude lists the file system types reported when nothing else is configured.
func DefaultTypeInclude() []string {
	return []string{"ext3", "ext4", "xfs", "jfs", "btrfs", "zfs", "ntfs", "refs", "hfs", "apfs", "exfat", "vfat"}
}

type ioCountersMeasurement struct {
	timestamp time.Time
	counters  disk.IOCountersStat
}

// calcIORate returns combined read and write bytes per second.
func calcIORate(prev, curr *ioCountersMeasurement) float64 {
	elapsed := curr.timestamp.Sub(prev.timestamp)
	return helper.CounterRate(prev.counters.ReadBytes, curr.counters.ReadBytes, elapsed) +
		helper.CounterRate(prev.counters.WriteBytes, curr.counters.WriteBytes, elapsed)
}

// ioCountersKey maps a partition device to the key used by disk.IOCounters,
// e.g. /dev/sda1 -> sda1, /dev/mapper/vg-root -> vg-root, C: -> C:.
func ioCountersKey(device string) string {
	if i := strings.LastIndex(device, "/"); i >= 0 {
		return device[i+1:]
	}
	return device
}

func isNetworkVolume(fsType string) bool {
	switch strings.ToLower(fsType) {
	case "smbfs", "nfs", "nfs4", "cifs":
		return true
	}
	return false
}

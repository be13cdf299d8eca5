package fs

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/openrport/rguard/client/monitoring/helper"
	"github.com/openrport/rguard/client/system"
	"github.com/openrport/rguard/share/logger"
	"github.com/openrport/rguard/share/models"
)

type FileSystemWatcherConfig struct {
	TypeInclude                 []string
	PathExclude                 []string
	PathExcludeRecurse          bool
	IdentifyMountpointsByDevice bool
}

type FileSystemWatcher struct {
	AllowedTypes      map[string]struct{}
	ExcludedPathCache map[string]bool
	config            *FileSystemWatcherConfig
	systemInfo        system.SysInfo
	prevIOCounters    map[string]*ioCountersMeasurement
	logger            *logger.Logger
	now               func() time.Time
}

func NewWatcher(config FileSystemWatcherConfig, systemInfo system.SysInfo, logger *logger.Logger) *FileSystemWatcher {
	fsWatcher := &FileSystemWatcher{
		AllowedTypes:      map[string]struct{}{},
		ExcludedPathCache: map[string]bool{},
		config:            &config,
		systemInfo:        systemInfo,
		prevIOCounters:    make(map[string]*ioCountersMeasurement),
		logger:            logger,
		now:               system.Now,
	}

	for _, t := range config.TypeInclude {
		fsWatcher.AllowedTypes[strings.ToLower(t)] = struct{}{}
	}

	return fsWatcher
}

// Results returns usage of every included partition. IORate stays 0 until the second call,
// since it is derived from the counters seen by the previous call. Partial failures are
// returned as a multierror next to whatever could be measured.
func (fw *FileSystemWatcher) Results(ctx context.Context) ([]models.DiskUsage, error) {
	ctx, cancel := context.WithTimeout(ctx, fsInfoRequestTimeout)
	defer cancel()

	var errs *multierror.Error

	partitions, err := fw.systemInfo.Partitions(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read partitions")
	}
	if fw.config.IdentifyMountpointsByDevice {
		partitions = uniqueByDevice(partitions)
	}

	ioCounters, err := fw.systemInfo.DiskIOCounters(ctx)
	if err != nil {
		errs = multierror.Append(errs, errors.Wrap(err, "failed to read IO counters"))
	}
	currTimestamp := fw.now()

	results := make([]models.DiskUsage, 0, len(partitions))
	for _, partition := range partitions {
		if fw.isExcluded(partition) {
			continue
		}

		usage, err := fw.systemInfo.DiskUsage(ctx, partition.Mountpoint)
		if err != nil {
			errs = multierror.Append(errs, errors.Wrapf(err, "failed to get usage info for %q (%s)", partition.Mountpoint, partition.Device))
			continue
		}

		du := models.DiskUsage{
			Mount:  partition.Mountpoint,
			FSType: partition.Fstype,
			Used:   usage.Used,
			Total:  usage.Total,
		}

		counters, found := ioCounters[ioCountersKey(partition.Device)]
		switch {
		case !found && isNetworkVolume(partition.Fstype):
			// this info is not available for network shares
			fw.logger.Debugf("skipping IO counters for network share %q (device %s)", partition.Mountpoint, partition.Device)
		case !found:
			fw.logger.Debugf("no IO counters for %q (device %s)", partition.Mountpoint, partition.Device)
		default:
			curr := &ioCountersMeasurement{timestamp: currTimestamp, counters: counters}
			key := strings.ToLower(partition.Mountpoint)
			if prev, ok := fw.prevIOCounters[key]; ok {
				du.IORate = calcIORate(prev, curr)
			}
			fw.prevIOCounters[key] = curr
		}

		results = append(results, du)
	}

	return results, errs.ErrorOrNil()
}

func (fw *FileSystemWatcher) isExcluded(partition disk.PartitionStat) bool {
	if len(fw.AllowedTypes) > 0 {
		if _, typeAllowed := fw.AllowedTypes[strings.ToLower(partition.Fstype)]; !typeAllowed {
			return true
		}
	}

	if fw.config.PathExcludeRecurse {
		for _, path := range fw.config.PathExclude {
			if strings.HasPrefix(partition.Mountpoint, path) {
				return true
			}
		}
	}

	mountPoint := strings.ToLower(partition.Mountpoint)
	if excluded, cached := fw.ExcludedPathCache[mountPoint]; cached {
		return excluded
	}

	excluded := false
	for _, glob := range fw.config.PathExclude {
		if excluded, _ = filepath.Match(glob, partition.Mountpoint); excluded {
			break
		}
	}
	fw.ExcludedPathCache[mountPoint] = excluded
	if excluded {
		fw.logger.Debugf("mountpoint excluded: %s", partition.Mountpoint)
	}
	return excluded
}

// uniqueByDevice keeps the first partition of every device. The list has the same order
// as the mount table, so bind mounts are dropped.
func uniqueByDevice(partitions []disk.PartitionStat) []disk.PartitionStat {
	knownDevices := make([]string, 0, len(partitions))
	filteredPartitions := make([]disk.PartitionStat, 0, len(partitions))
	for _, p := range partitions {
		if !helper.StrInSlice(p.Device, knownDevices) {
			knownDevices = append(knownDevices, p.Device)
			filteredPartitions = append(filteredPartitions, p)
		}
	}
	return filteredPartitions
}

package monitoring

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/openrport/rguard/client/monitoring/fs"
	"github.com/openrport/rguard/client/monitoring/gpu"
	"github.com/openrport/rguard/client/monitoring/helper"
	"github.com/openrport/rguard/client/monitoring/networking"
	"github.com/openrport/rguard/client/system"
	"github.com/openrport/rguard/share/logger"
	"github.com/openrport/rguard/share/models"
)

// Collector produces one aggregate Snapshot per call. It keeps the counters of the previous
// call to derive rates, so calls are serialized.
type Collector struct {
	mtx               sync.Mutex
	logger            *logger.Logger
	systemInfo        system.SysInfo
	fileSystemWatcher *fs.FileSystemWatcher
	netWatcher        *networking.NetWatcher
	gpuWatcher        *gpu.Watcher
}

func NewCollector(logger *logger.Logger, config Config, systemInfo system.SysInfo, runner system.CmdRunner) *Collector {
	fsWatcher := fs.NewWatcher(fs.FileSystemWatcherConfig{
		TypeInclude:                 config.FSTypeInclude,
		PathExclude:                 config.FSPathExclude,
		PathExcludeRecurse:          config.FSPathExcludeRecurse,
		IdentifyMountpointsByDevice: config.FSIdentifyMountpointsByDevice,
	}, systemInfo, logger.Fork("fs"))
	netWatcher := networking.NewWatcher(networking.NetWatcherConfig{
		NetInterfaceExclude:             config.NetInterfaceExclude,
		NetInterfaceExcludeRegex:        config.NetInterfaceExcludeRegex,
		NetInterfaceExcludeDisconnected: config.NetInterfaceExcludeDisconnected,
		NetInterfaceExcludeLoopback:     config.NetInterfaceExcludeLoopback,
	}, systemInfo, logger.Fork("net"))

	c := &Collector{
		logger:            logger,
		systemInfo:        systemInfo,
		fileSystemWatcher: fsWatcher,
		netWatcher:        netWatcher,
	}
	if config.GPUEnabled && runner != nil {
		c.gpuWatcher = gpu.NewWatcher(runner, config.NvidiaSMIPaths, logger.Fork("gpu"))
	}
	return c
}

// Snapshot measures all subsystems. A failing subsystem leaves its fields zero and is only
// logged.
func (c *Collector) Snapshot(ctx context.Context) models.Snapshot {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	snap, err := c.createSnapshot(ctx)
	if err != nil {
		c.logger.Debugf("incomplete snapshot: %v", err)
	}
	return snap
}

func (c *Collector) createSnapshot(ctx context.Context) (models.Snapshot, error) {
	var errs *multierror.Error
	snap := models.Snapshot{
		Timestamp: system.Now().UTC(),
		PerDisk:   []models.DiskUsage{},
	}

	cpuPercent, err := c.systemInfo.CPUPercent(ctx)
	if err == nil {
		snap.CPUPercent = helper.RoundToTwoDecimalPlaces(nonNegative(cpuPercent))
	} else {
		errs = multierror.Append(errs, errors.Wrap(err, "cannot measure cpu_percent"))
	}

	cpuFrequency, err := c.systemInfo.CPUFrequency(ctx)
	if err == nil {
		snap.CPUFrequency = nonNegative(cpuFrequency)
	} else {
		errs = multierror.Append(errs, errors.Wrap(err, "cannot measure cpu_frequency"))
	}

	memStats, err := c.systemInfo.MemoryStats(ctx)
	if err == nil && memStats != nil {
		snap.MemUsed = memStats.Used
		snap.MemTotal = memStats.Total
		snap.MemPercent = helper.RoundToTwoDecimalPlaces(nonNegative(memStats.UsedPercent))
	} else if err != nil {
		errs = multierror.Append(errs, errors.Wrap(err, "cannot measure memory"))
	}

	swapStats, err := c.systemInfo.SwapStats(ctx)
	if err == nil && swapStats != nil {
		snap.SwapUsed = swapStats.Used
		snap.SwapTotal = swapStats.Total
	} else if err != nil {
		errs = multierror.Append(errs, errors.Wrap(err, "cannot measure swap"))
	}

	disks, err := c.fileSystemWatcher.Results(ctx)
	if disks != nil {
		snap.PerDisk = disks
	}
	if err != nil {
		errs = multierror.Append(errs, errors.Wrap(err, "cannot measure disks"))
	}

	netIO, err := c.netWatcher.Results(ctx)
	if err == nil {
		snap.NetIO = netIO
	} else {
		errs = multierror.Append(errs, errors.Wrap(err, "cannot measure network"))
	}

	if c.gpuWatcher != nil {
		snap.GPU = c.gpuWatcher.Results()
	}

	return snap, errs.ErrorOrNil()
}

// Close stops background GPU queries.
func (c *Collector) Close() {
	if c.gpuWatcher != nil {
		c.gpuWatcher.Close()
	}
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

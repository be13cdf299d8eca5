package networking

import (
	"context"
	"regexp"
	"time"

	"github.com/pkg/errors"
	utilnet "github.com/shirou/gopsutil/v3/net"

	"github.com/openrport/rguard/client/monitoring/helper"
	"github.com/openrport/rguard/client/system"
	"github.com/openrport/rguard/share/logger"
	"github.com/openrport/rguard/share/models"
)

type NetWatcherConfig struct {
	NetInterfaceExclude             []string
	NetInterfaceExcludeRegex        []string
	NetInterfaceExcludeDisconnected bool
	NetInterfaceExcludeLoopback     bool
}

// DefaultInterfaceExcludeRegex skips virtual bridges and container interfaces.
func DefaultInterfaceExcludeRegex() []string {
	return []string{"^vnet(.*)$", "^virbr(.*)$", "^vmnet(.*)$", "^vEthernet(.*)$", "^docker(.*)$", "^veth(.*)$"}
}

type NetWatcher struct {
	config     NetWatcherConfig
	systemInfo system.SysInfo
	logger     *logger.Logger
	now        func() time.Time

	lastIOCounters   map[string]utilnet.IOCountersStat
	lastIOCountersAt time.Time

	netInterfaceExcludeRegexCompiled []*regexp.Regexp
	constantlyExcludedInterfaceCache map[string]bool
}

func NewWatcher(cfg NetWatcherConfig, systemInfo system.SysInfo, logger *logger.Logger) *NetWatcher {
	nw := &NetWatcher{
		config:                           cfg,
		systemInfo:                       systemInfo,
		logger:                           logger,
		now:                              system.Now,
		constantlyExcludedInterfaceCache: map[string]bool{},
	}

	// compile once, so we don't need to compile them on each iteration of measurements
	for _, reString := range cfg.NetInterfaceExcludeRegex {
		re, err := regexp.Compile(reString)
		if err != nil {
			logger.Errorf("net_interface_exclude_regex regexp '%s' compile error: %s", reString, err.Error())
			continue
		}
		nw.netInterfaceExcludeRegexCompiled = append(nw.netInterfaceExcludeRegexCompiled, re)
	}
	return nw
}

func (nw *NetWatcher) isInterfaceExcludedByName(netIf *utilnet.InterfaceStat) bool {
	return helper.StrInSliceFold(netIf.Name, nw.config.NetInterfaceExclude)
}

func (nw *NetWatcher) isInterfaceExcludedByRegexp(netIf *utilnet.InterfaceStat) bool {
	for _, re := range nw.netInterfaceExcludeRegexCompiled {
		if re.MatchString(netIf.Name) {
			return true
		}
	}
	return false
}

func (nw *NetWatcher) ExcludedInterfacesByName(allInterfaces []utilnet.InterfaceStat) map[string]struct{} {
	excludedInterfaces := map[string]struct{}{}

	for i := range allInterfaces {
		netIf := &allInterfaces[i]
		// all the checks except UP/DOWN state are constant for the same interface and config
		isExcluded, cacheExists := nw.constantlyExcludedInterfaceCache[netIf.Name]
		if !cacheExists {
			isExcluded = nw.config.NetInterfaceExcludeLoopback && isInterfaceLoopback(netIf) ||
				nw.isInterfaceExcludedByName(netIf) ||
				nw.isInterfaceExcludedByRegexp(netIf)
			nw.constantlyExcludedInterfaceCache[netIf.Name] = isExcluded
		}

		if isExcluded || nw.config.NetInterfaceExcludeDisconnected && isInterfaceDown(netIf) {
			excludedInterfaces[netIf.Name] = struct{}{}
			if !cacheExists {
				nw.logger.Debugf("interface excluded: %s", netIf.Name)
			}
		}
	}
	return excludedInterfaces
}

// Results returns receive and transmit rates summed over the non-excluded interfaces. The
// first call only records a baseline and returns zero rates.
func (nw *NetWatcher) Results(ctx context.Context) (models.NetIO, error) {
	result := models.NetIO{}

	interfaces, err := nw.systemInfo.NetInterfaces(ctx)
	if err != nil {
		return result, errors.Wrap(err, "failed to read interfaces")
	}
	excluded := nw.ExcludedInterfacesByName(interfaces)

	counters, err := nw.systemInfo.NetIOCounters(ctx)
	if err != nil {
		return result, errors.Wrap(err, "failed to read IO counters")
	}

	gotIOCountersAt := nw.now()
	current := make(map[string]utilnet.IOCountersStat, len(counters))
	for _, c := range counters {
		current[c.Name] = c
	}
	defer func() {
		nw.lastIOCounters = current
		nw.lastIOCountersAt = gotIOCountersAt
	}()

	if nw.lastIOCounters == nil {
		nw.logger.Debugf("IO stat is available starting from 2nd check")
		return result, nil
	}

	elapsed := gotIOCountersAt.Sub(nw.lastIOCountersAt)
	for name, ioCounter := range current {
		if _, isExcluded := excluded[name]; isExcluded {
			continue
		}
		previous, exists := nw.lastIOCounters[name]
		if !exists {
			// interface appeared since the last check
			continue
		}
		result.RxRate += helper.CounterRate(previous.BytesRecv, ioCounter.BytesRecv, elapsed)
		result.TxRate += helper.CounterRate(previous.BytesSent, ioCounter.BytesSent, elapsed)
	}
	result.RxRate = helper.RoundToTwoDecimalPlaces(result.RxRate)
	result.TxRate = helper.RoundToTwoDecimalPlaces(result.TxRate)
	return result, nil
}

func isInterfaceLoopback(netIf *utilnet.InterfaceStat) bool {
	return hasFlag(netIf, "loopback")
}

func isInterfaceDown(netIf *utilnet.InterfaceStat) bool {
	return !hasFlag(netIf, "up")
}

func hasFlag(netIf *utilnet.InterfaceStat, flag string) bool {
	for _, f := range netIf.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

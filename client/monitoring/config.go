package monitoring

import (
	"github.com/openrport/rguard/client/monitoring/fs"
	"github.com/openrport/rguard/client/monitoring/networking"
)

type Config struct {
	FSTypeInclude                   []string `mapstructure:"fs_type_include"`
	FSPathExclude                   []string `mapstructure:"fs_path_exclude"`
	FSPathExcludeRecurse            bool     `mapstructure:"fs_path_exclude_recurse"`
	FSIdentifyMountpointsByDevice   bool     `mapstructure:"fs_identify_mountpoints_by_device"`
	NetInterfaceExclude             []string `mapstructure:"net_interface_exclude"`
	NetInterfaceExcludeRegex        []string `mapstructure:"net_interface_exclude_regex"`
	NetInterfaceExcludeDisconnected bool     `mapstructure:"net_interface_exclude_disconnected"`
	NetInterfaceExcludeLoopback     bool     `mapstructure:"net_interface_exclude_loopback"`
	GPUEnabled                      bool     `mapstructure:"gpu_enabled"`
	NvidiaSMIPaths                  []string `mapstructure:"nvidia_smi_paths"`
}

func DefaultConfig() Config {
	return Config{
		FSTypeInclude:                   fs.DefaultTypeInclude(),
		FSIdentifyMountpointsByDevice:   true,
		NetInterfaceExcludeRegex:        networking.DefaultInterfaceExcludeRegex(),
		NetInterfaceExcludeDisconnected: true,
		NetInterfaceExcludeLoopback:     true,
		GPUEnabled:                      true,
	}
}

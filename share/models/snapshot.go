package models

import "time"

// Snapshot is a point-in-time aggregate of system metrics. It is produced once per
// sampling tick and never persisted.
type Snapshot struct {
	Timestamp    time.Time   `json:"timestamp"`
	CPUPercent   float64     `json:"cpu_percent"`
	CPUFrequency float64     `json:"cpu_frequency_mhz"`
	MemUsed      uint64      `json:"mem_used"`
	MemTotal     uint64      `json:"mem_total"`
	MemPercent   float64     `json:"mem_percent"`
	SwapUsed     uint64      `json:"swap_used"`
	SwapTotal    uint64      `json:"swap_total"`
	PerDisk      []DiskUsage `json:"per_disk"`
	NetIO        NetIO       `json:"net_io"`
	// GPU is nil when no compatible device or driver is present.
	GPU []GPUUsage `json:"gpu,omitempty"`
}

type DiskUsage struct {
	Mount  string  `json:"mount"`
	FSType string  `json:"fstype"`
	Used   uint64  `json:"used"`
	Total  uint64  `json:"total"`
	IORate float64 `json:"io_rate"`
}

type NetIO struct {
	RxRate float64 `json:"rx_rate"`
	TxRate float64 `json:"tx_rate"`
}

type GPUUsage struct {
	Util    float64 `json:"util"`
	MemUsed uint64  `json:"mem_used"`
	TempC   float64 `json:"temp_c"`
}

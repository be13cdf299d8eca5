package gpu

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/openrport/rguard/client/system"
	"github.com/openrport/rguard/share/logger"
	"github.com/openrport/rguard/share/models"
)

const (
	nvidiaSMI       = "nvidia-smi"
	queryTimeout    = 2 * time.Second
	refreshInterval = 2 * time.Second
	idleTimeout     = 10 * time.Second
	queryArgFormat  = "--format=csv,noheader,nounits"
	queryArgFields  = "--query-gpu=utilization.gpu,memory.used,temperature.gpu"
	bytesPerMiB     = 1024 * 1024
)

var nvidiaSMIFallbacks = []string{
	"/usr/bin/nvidia-smi",
	"/usr/local/bin/nvidia-smi",
	`C:\Windows\System32\nvidia-smi.exe`,
	`C:\Program Files\NVIDIA Corporation\NVSMI\nvidia-smi.exe`,
}

// Watcher reads utilization of NVIDIA devices through nvidia-smi. Hosts without the tool or
// without a device report no GPU, which is not an error.
//
// nvidia-smi is queried on a background goroutine, Results only returns the latest reading.
// The refresh starts with the first Results call and stops once nobody asked for idleTimeout.
type Watcher struct {
	runner      system.CmdRunner
	logger      *logger.Logger
	configured  []string
	interval    time.Duration
	idleTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu            sync.Mutex
	path          string
	missingLogged bool
	last          []models.GPUUsage
	lastAsked     time.Time
	running       bool
	closed        bool
}

func NewWatcher(runner system.CmdRunner, configuredPaths []string, logger *logger.Logger) *Watcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		runner:      runner,
		logger:      logger,
		configured:  configuredPaths,
		interval:    refreshInterval,
		idleTimeout: idleTimeout,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Results returns one entry per device or nil. It never waits for nvidia-smi.
func (w *Watcher) Results() []models.GPUUsage {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.lastAsked = time.Now()
	if !w.running && !w.closed {
		w.running = true
		w.wg.Add(1)
		go w.refreshLoop()
	}
	if w.last == nil {
		return nil
	}
	return append([]models.GPUUsage{}, w.last...)
}

// Close stops the background refresh and waits for a running query to return.
func (w *Watcher) Close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()

	w.cancel()
	w.wg.Wait()
}

func (w *Watcher) refreshLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		usage := w.query(w.ctx)

		w.mu.Lock()
		w.last = usage
		if w.closed || time.Since(w.lastAsked) > w.idleTimeout {
			w.running = false
			w.last = nil
			w.mu.Unlock()
			return
		}
		w.mu.Unlock()

		select {
		case <-ticker.C:
		case <-w.ctx.Done():
			w.mu.Lock()
			w.running = false
			w.mu.Unlock()
			return
		}
	}
}

// nvidiaSMIPath is resolved until the tool is found, installing it needs no restart.
func (w *Watcher) nvidiaSMIPath() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.path != "" {
		return w.path
	}
	w.path = system.ResolveExecutable(w.configured, nvidiaSMI, nvidiaSMIFallbacks)
	switch {
	case w.path != "":
		w.logger.Debugf("using %s", w.path)
		w.missingLogged = false
	case !w.missingLogged:
		w.logger.Debugf("%s not found, GPU metrics disabled", nvidiaSMI)
		w.missingLogged = true
	}
	return w.path
}

func (w *Watcher) query(ctx context.Context) []models.GPUUsage {
	path := w.nvidiaSMIPath()
	if path == "" {
		return nil
	}

	res, err := w.runner.Run(ctx, queryTimeout, path, queryArgFields, queryArgFormat)
	if err != nil {
		w.logger.Debugf("failed to query GPU: %v", err)
		return nil
	}

	usage, err := parseQueryOutput(string(res.Stdout))
	if err != nil {
		w.logger.Debugf("failed to parse %s output: %v", nvidiaSMI, err)
		return nil
	}
	return usage
}

// parseQueryOutput parses lines like "37, 1024, 55". Fields reported as "[N/A]" are taken
// as zero.
func parseQueryOutput(out string) ([]models.GPUUsage, error) {
	var result []models.GPUUsage
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) != 3 {
			return nil, errors.Errorf("unexpected line %q", line)
		}

		values := make([]float64, 3)
		for i, f := range fields {
			f = strings.TrimSpace(f)
			if strings.HasPrefix(f, "[") {
				continue
			}
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid value in line %q", line)
			}
			if v < 0 {
				v = 0
			}
			values[i] = v
		}

		result = append(result, models.GPUUsage{
			Util:    values[0],
			MemUsed: uint64(values[1] * bytesPerMiB),
			TempC:   values[2],
		})
	}
	return result, nil
}

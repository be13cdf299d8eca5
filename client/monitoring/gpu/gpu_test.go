package gpu

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrport/rguard/client/system"
	"github.com/openrport/rguard/share/logger"
	"github.com/openrport/rguard/share/models"
)

type fakeRunner struct {
	mu      sync.Mutex
	out     string
	err     error
	calls   int
	args    []string
	release chan struct{}
}

func (r *fakeRunner) Run(ctx context.Context, timeout time.Duration, name string, args ...string) (*system.CmdResult, error) {
	r.mu.Lock()
	r.calls++
	r.args = append([]string{name}, args...)
	out, err, release := r.out, r.err, r.release
	r.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &system.CmdResult{Stdout: []byte(out)}, err
}

func (r *fakeRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func (r *fakeRunner) setErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func withoutPathLookup(t *testing.T) {
	origLookPath, origFallbacks := system.LookPath, nvidiaSMIFallbacks
	system.LookPath = func(string) (string, error) { return "", errors.New("not found") }
	nvidiaSMIFallbacks = nil
	t.Cleanup(func() {
		system.LookPath = origLookPath
		nvidiaSMIFallbacks = origFallbacks
	})
}

func writeExecutable(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0755))
}

func newTestWatcher(t *testing.T, r *fakeRunner, configured []string) *Watcher {
	w := NewWatcher(r, configured, logger.NewDiscardLogger())
	w.interval = 10 * time.Millisecond
	t.Cleanup(w.Close)
	return w
}

func TestParseQueryOutput(t *testing.T) {
	got, err := parseQueryOutput("37, 1024, 55\n 0, [N/A], 40 \n\n")
	require.NoError(t, err)
	assert.Equal(t, []models.GPUUsage{
		{Util: 37, MemUsed: 1024 * 1024 * 1024, TempC: 55},
		{Util: 0, MemUsed: 0, TempC: 40},
	}, got)

	_, err = parseQueryOutput("37, 1024")
	assert.Error(t, err)

	_, err = parseQueryOutput("a, b, c")
	assert.Error(t, err)

	got, err = parseQueryOutput("")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestResults(t *testing.T) {
	withoutPathLookup(t)
	smi := filepath.Join(t.TempDir(), "nvidia-smi")
	writeExecutable(t, smi)
	r := &fakeRunner{out: "12, 300, 61\n"}
	w := newTestWatcher(t, r, []string{smi})

	want := []models.GPUUsage{{Util: 12, MemUsed: 300 * 1024 * 1024, TempC: 61}}
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual(want, w.Results())
	}, 2*time.Second, 5*time.Millisecond)

	r.mu.Lock()
	assert.Equal(t, []string{smi, queryArgFields, queryArgFormat}, r.args)
	r.mu.Unlock()

	r.setErr(system.ErrCommandTimeout)
	require.Eventually(t, func() bool { return w.Results() == nil }, 2*time.Second, 5*time.Millisecond)
}

func TestResultsDoNotWaitForQuery(t *testing.T) {
	withoutPathLookup(t)
	smi := filepath.Join(t.TempDir(), "nvidia-smi")
	writeExecutable(t, smi)
	r := &fakeRunner{out: "50, 10, 70\n", release: make(chan struct{})}
	w := newTestWatcher(t, r, []string{smi})

	start := time.Now()
	assert.Nil(t, w.Results())
	require.Eventually(t, func() bool { return r.callCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Nil(t, w.Results())
	assert.Less(t, time.Since(start), time.Second)

	close(r.release)
	require.Eventually(t, func() bool { return w.Results() != nil }, 2*time.Second, 5*time.Millisecond)
}

func TestResultsPickUpInstalledTool(t *testing.T) {
	withoutPathLookup(t)
	smi := filepath.Join(t.TempDir(), "nvidia-smi")
	r := &fakeRunner{out: "1, 1, 1\n"}
	w := newTestWatcher(t, r, []string{smi})

	assert.Nil(t, w.Results())
	time.Sleep(50 * time.Millisecond)
	assert.Nil(t, w.Results())
	assert.Equal(t, 0, r.callCount())

	writeExecutable(t, smi)

	require.Eventually(t, func() bool { return w.Results() != nil }, 2*time.Second, 5*time.Millisecond)
}

func TestRefreshStopsWhenIdle(t *testing.T) {
	withoutPathLookup(t)
	smi := filepath.Join(t.TempDir(), "nvidia-smi")
	writeExecutable(t, smi)
	r := &fakeRunner{out: "1, 1, 1\n"}
	w := newTestWatcher(t, r, []string{smi})
	w.idleTimeout = 30 * time.Millisecond

	w.Results()

	require.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return !w.running
	}, 2*time.Second, 5*time.Millisecond)
	calls := r.callCount()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, r.callCount())
}

func TestCloseStopsRefresh(t *testing.T) {
	withoutPathLookup(t)
	smi := filepath.Join(t.TempDir(), "nvidia-smi")
	writeExecutable(t, smi)
	r := &fakeRunner{out: "1, 1, 1\n", release: make(chan struct{})}
	w := NewWatcher(r, []string{smi}, logger.NewDiscardLogger())

	w.Results()
	require.Eventually(t, func() bool { return r.callCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	w.Close()

	assert.Nil(t, w.Results())
	assert.Equal(t, 1, r.callCount())
}

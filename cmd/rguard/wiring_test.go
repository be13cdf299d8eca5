package main

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrport/rguard/client/monitoring"
	"github.com/openrport/rguard/client/reputation"
	"github.com/openrport/rguard/client/scanners/file"
	"github.com/openrport/rguard/server/bridge"
	"github.com/openrport/rguard/server/chconfig"
	"github.com/openrport/rguard/share/logger"
	"github.com/openrport/rguard/share/registry"
)

func newTestConfig(t *testing.T, apiAddress string) *chconfig.Config {
	t.Setenv(chconfig.EnvReputationAPIKey, "")
	cfg := &chconfig.Config{
		API:        chconfig.APIConfig{Address: apiAddress},
		Monitoring: monitoring.DefaultConfig(),
		EventLog:   chconfig.EventLogConfig{Sources: []string{"system"}},
		Database:   chconfig.DatabaseConfig{Path: filepath.Join(t.TempDir(), "rguard.db")},
	}
	cfg.Monitoring.GPUEnabled = false
	require.NoError(t, cfg.ParseAndValidate(logger.NewMemLogger()))
	return cfg
}

func closeRegistry(t *testing.T, r *registry.Registry) {
	b, err := registry.ResolveAs[*bridge.Bridge](r, keyBridge)
	require.NoError(t, err)
	require.NoError(t, b.Close())
	repo, err := registry.ResolveAs[interface{ Close() error }](r, keyRepository)
	require.NoError(t, err)
	require.NoError(t, repo.Close())
}

func TestWireWithoutReputation(t *testing.T) {
	cfg := newTestConfig(t, "")

	r, err := wire(cfg, logger.NewDiscardLogger())
	require.NoError(t, err)
	defer closeRegistry(t, r)

	_, err = r.Resolve(keyReputation)
	assert.ErrorIs(t, err, registry.ErrNotRegistered)

	// factories build a fresh scanner on every resolve
	s1, err := registry.ResolveAs[*file.Scanner](r, keyFileScanner)
	require.NoError(t, err)
	s2, err := registry.ResolveAs[*file.Scanner](r, keyFileScanner)
	require.NoError(t, err)
	assert.NotSame(t, s1, s2)

	runners, err := scanRunners(r)
	require.NoError(t, err)
	assert.Len(t, runners, 3)
}

func TestWireWithReputation(t *testing.T) {
	cfg := newTestConfig(t, "")
	cfg.Reputation.APIKey = "key"

	r, err := wire(cfg, logger.NewDiscardLogger())
	require.NoError(t, err)
	defer closeRegistry(t, r)

	c1, err := registry.ResolveAs[*reputation.Client](r, keyReputation)
	require.NoError(t, err)
	c2, err := resolveReputation(r)
	require.NoError(t, err)
	assert.Same(t, c1, c2)
}

func TestWireFailsOnUnusableDatabase(t *testing.T) {
	cfg := newTestConfig(t, "")
	cfg.Database.Path = filepath.Join(t.TempDir(), "missing", "dir", "rguard.db")

	_, err := wire(cfg, logger.NewDiscardLogger())

	assert.Error(t, err)
}

func TestAgentRunServesAPIUntilCancelled(t *testing.T) {
	cfg := newTestConfig(t, "127.0.0.1:0")
	a, err := newAgent(cfg, logger.NewDiscardLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- a.Run(ctx)
	}()

	require.Eventually(t, func() bool { return a.api.Addr() != nil }, 2*time.Second, 10*time.Millisecond)
	resp, err := http.Get("http://" + a.api.Addr().String() + "/api/v1/live")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("agent did not stop")
	}
}

func TestAgentWithoutAPI(t *testing.T) {
	cfg := newTestConfig(t, "")
	a, err := newAgent(cfg, logger.NewDiscardLogger())
	require.NoError(t, err)
	assert.Nil(t, a.api)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, a.Run(ctx))
}

func TestNewAgentRejectsBadSchedule(t *testing.T) {
	cfg := newTestConfig(t, "")
	cfg.Database.CleanupSchedule = "never"

	_, err := newAgent(cfg, logger.NewDiscardLogger())

	assert.ErrorContains(t, err, `invalid schedule "never"`)
}

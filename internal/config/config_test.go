package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 1, cfg.Worker.TotalInstances)
	require.Equal(t, 10, cfg.Worker.MaxThreadsPerInstance)
	require.Equal(t, 3600, cfg.UserLimit.TimeWindowSeconds)
	require.Equal(t, 50, cfg.UserLimit.MaxThreadsPerWindow)
	require.Equal(t, 10, cfg.UserLimit.MaxJobsPerWindow)
	require.Equal(t, 2000, cfg.Dispatch.TickIntervalMs)
	require.Equal(t, 300000, cfg.Dispatch.StatsCleanupIntervalMs)
	require.Equal(t, 3, cfg.Transport.Partitions)
	require.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestValidateRejectsZeroCapacity(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Worker.TotalInstances = 0
	require.ErrorContains(t, cfg.Validate(), "worker.total_instances")
}

func TestValidateRequiresAPIKeyWhenAuthEnabled(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Auth.Enabled = true
	require.ErrorContains(t, cfg.Validate(), "auth.api_key")

	cfg.Auth.APIKey = "secret"
	require.NoError(t, cfg.Validate())
}

func TestUserLimitConfigWindow(t *testing.T) {
	t.Parallel()

	u := UserLimitConfig{TimeWindowSeconds: 60}
	require.Equal(t, int64(60), u.Window().Milliseconds()/1000)
}

func TestDispatchConfigIntervals(t *testing.T) {
	t.Parallel()

	d := DispatchConfig{TickIntervalMs: 1500, StatsCleanupIntervalMs: 60000}
	require.Equal(t, int64(1500), d.TickInterval().Milliseconds())
	require.Equal(t, int64(60000), d.StatsCleanupInterval().Milliseconds())
}

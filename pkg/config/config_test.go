package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := New()
	require.NoError(t, err)
	require.Equal(t, "development", cfg.AppEnv)
	require.Equal(t, "flyerportal", cfg.AppName)
	require.Equal(t, "8080", cfg.Server.Addr)
	require.Equal(t, "9090", cfg.Grpc.Addr)
	require.Equal(t, "postgres", cfg.Database.Type)
	require.Equal(t, "noop", cfg.Events.Driver)
	require.Equal(t, int64(1), cfg.Snowflake.Node)
	require.Equal(t, time.Minute, cfg.Lottery.SummaryCacheTTL)
	require.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
}

func TestNewReadsEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("APP_ENV", "production")
	t.Setenv("HTTP_SERVER_ADDR", "9000")
	t.Setenv("AUTH_JWT_SECRET", "secret")
	t.Setenv("AUTH_ISSUER", "flyerportal")
	t.Setenv("EVENTS_DRIVER", "nats")
	t.Setenv("LOTTERY_SUMMARY_CACHE_TTL", "30s")

	cfg, err := New()
	require.NoError(t, err)
	require.Equal(t, "production", cfg.AppEnv)
	require.Equal(t, "9000", cfg.Server.Addr)
	require.Equal(t, "secret", cfg.Auth.JWTSecret)
	require.Equal(t, "flyerportal", cfg.Auth.Issuer)
	require.Equal(t, "nats", cfg.Events.Driver)
	require.Equal(t, 30*time.Second, cfg.Lottery.SummaryCacheTTL)
}

package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	_ "github.com/odyssey-erp/odyssey-authz/testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("APP_ENV", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, 120, cfg.RateLimitPerMinute)
	require.Equal(t, 5*time.Second, cfg.ApprovalLockTTL)
	require.False(t, cfg.IsProduction())
	require.True(t, cfg.PanicOnInvariant())
}

func TestLoadConfigRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigProductionRules(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "short")
	_, err := LoadConfig()
	require.Error(t, err)

	t.Setenv("JWT_SECRET", "a-long-enough-production-secret")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.True(t, cfg.IsProduction())
	require.False(t, cfg.PanicOnInvariant())
}

func TestTestModeIsDetected(t *testing.T) {
	RefreshTestMode()
	require.True(t, InTestMode())
}

func TestTestModeAcceptsBooleanValues(t *testing.T) {
	t.Cleanup(RefreshTestMode)

	t.Setenv("ODYSSEY_TEST_MODE", "true")
	RefreshTestMode()
	require.True(t, InTestMode())

	t.Setenv("ODYSSEY_TEST_MODE", "0")
	RefreshTestMode()
	require.False(t, InTestMode())
}

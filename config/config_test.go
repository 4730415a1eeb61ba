package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/code-payments/billing-bridge/event"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.True(t, cfg.IsDevelopment())
	require.Equal(t, event.FireOnce, cfg.ActionPolicy)
	require.Zero(t, cfg.ActionTimeout)
	require.False(t, cfg.Strict)
	require.Equal(t, 256, cfg.QueueSize)
	require.Equal(t, "Android", cfg.Platform)
	require.Len(t, cfg.Options(), 5)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("BRIDGE_ENV", "production")
	t.Setenv("BRIDGE_PLATFORM", "Amazon")
	t.Setenv("BRIDGE_PACKAGE_NAME", "com.example.store")
	t.Setenv("BRIDGE_ACTION_POLICY", "per-item")
	t.Setenv("BRIDGE_ACTION_TIMEOUT", "30s")
	t.Setenv("BRIDGE_STRICT", "true")
	t.Setenv("BRIDGE_QUEUE_SIZE", "16")

	cfg, err := Load()
	require.NoError(t, err)

	require.False(t, cfg.IsDevelopment())
	require.Equal(t, "Amazon", cfg.Platform)
	require.Equal(t, "com.example.store", cfg.PackageName)
	require.Equal(t, event.FirePerItem, cfg.ActionPolicy)
	require.Equal(t, 30*time.Second, cfg.ActionTimeout)
	require.True(t, cfg.Strict)
	require.Equal(t, 16, cfg.QueueSize)
}

func TestLoad_Invalid(t *testing.T) {
	for key, value := range map[string]string{
		"BRIDGE_ACTION_POLICY":  "sometimes",
		"BRIDGE_ACTION_TIMEOUT": "soon",
		"BRIDGE_STRICT":         "maybe",
		"BRIDGE_QUEUE_SIZE":     "many",
	} {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)

			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestParsePolicy(t *testing.T) {
	for input, expected := range map[string]event.Policy{
		"":         event.FireOnce,
		"once":     event.FireOnce,
		"ONCE":     event.FireOnce,
		"per_item": event.FirePerItem,
		"per-item": event.FirePerItem,
	} {
		policy, err := ParsePolicy(input)
		require.NoError(t, err)
		require.Equal(t, expected, policy)
	}
}

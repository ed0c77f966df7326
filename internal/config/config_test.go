package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfigPopulatesDefaults(t *testing.T) {
	cfg := DefaultConfig("/tmp/downloads")

	assert.Equal(t, DefaultRpcPort, cfg.RpcPort)
	assert.Equal(t, DefaultMaxRestartAttempts, cfg.MaxRestartAttempts)
	assert.Equal(t, DefaultHealthCheckInterval, cfg.HealthCheckInterval)
	assert.Equal(t, "/tmp/downloads", cfg.DownloadDir)
	assert.Equal(t, "burncloud", cfg.RpcSecret)
}

func TestDefaultConfigUsesTheSameFixedSecretEveryCall(t *testing.T) {
	a := DefaultConfig("/tmp/a")
	b := DefaultConfig("/tmp/b")

	assert.Equal(t, DefaultRpcSecret, a.RpcSecret)
	assert.Equal(t, a.RpcSecret, b.RpcSecret, "the default secret is a fixed, explicitly insecure constant, not per-call-random")
}

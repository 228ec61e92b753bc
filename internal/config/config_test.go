package config

import (
	"io"
	"testing"
	"time"

	"github.com/Wyydra/peercall/internal/adapter/driven/signaling/peerjs"
	"github.com/Wyydra/peercall/internal/core/domain"
	"github.com/Wyydra/peercall/internal/core/service"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func loadWith(env map[string]string, args ...string) (Config, error) {
	return load(lookupMap(env), args, io.Discard)
}

func TestDefaults(t *testing.T) {
	cfg, err := loadWith(nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultListenAddr, cfg.ListenAddr)
	assert.Equal(t, zerolog.InfoLevel, cfg.LogLevel)
	assert.Equal(t, LogFormatText, cfg.LogFormat)
	assert.Equal(t, peerjs.DefaultHost, cfg.Signaling.Host)
	assert.Equal(t, peerjs.DefaultPort, cfg.Signaling.Port)
	assert.True(t, cfg.Signaling.Secure)
	assert.True(t, cfg.Signaling.PeerID.IsZero())
	assert.Equal(t, DefaultICEServers, cfg.ICEServers)
	assert.Equal(t, cfg.ICEServers, cfg.Signaling.ICE.ICEServers)
	assert.Equal(t, service.DefaultOptions(), cfg.Call)
	assert.Zero(t, cfg.UDPPortMin)
}

func TestFlagsOverrideEnv(t *testing.T) {
	env := map[string]string{
		envPeerID:        "from-env",
		envSignalingHost: "signal.example",
		envLockCooldown:  "3s",
		envAutoAnswer:    "false",
	}
	cfg, err := loadWith(env, "-peer-id", "from-flag", "-log-format", "json", "-watchdog-warn", "10")
	require.NoError(t, err)

	assert.Equal(t, domain.PeerID("from-flag"), cfg.Signaling.PeerID)
	assert.Equal(t, "signal.example", cfg.Signaling.Host)
	assert.Equal(t, 3*time.Second, cfg.Call.Timings.LockCooldown)
	assert.False(t, cfg.Call.AutoAnswer)
	assert.Equal(t, LogFormatJSON, cfg.LogFormat)
	assert.Equal(t, 10, cfg.Call.Timings.WatchdogWarnAfter)
}

func TestInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		args []string
	}{
		{name: "bad duration", env: map[string]string{envLockCooldown: "soon"}},
		{name: "bad bool", env: map[string]string{envSignalingSecure: "maybe"}},
		{name: "bad level", args: []string{"-log-level", "loud"}},
		{name: "bad format", args: []string{"-log-format", "xml"}},
		{name: "half port range", env: map[string]string{envUDPPortMin: "50000"}},
		{name: "inverted port range", args: []string{"-udp-port-min", "6000", "-udp-port-max", "5000"}},
		{name: "port out of range", args: []string{"-signaling-port", "70000"}},
		{name: "watchdog order", args: []string{"-watchdog-warn", "30", "-watchdog-fail", "10"}},
		{name: "negative delay", args: []string{"-start-settle", "-1s"}},
		{name: "turn without credentials", env: map[string]string{envTurnURLs: "turn:turn.example:3478"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadWith(tt.env, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestUDPPortRange(t *testing.T) {
	cfg, err := loadWith(map[string]string{envUDPPortMin: "50000", envUDPPortMax: "50100"})
	require.NoError(t, err)
	assert.Equal(t, uint16(50000), cfg.UDPPortMin)
	assert.Equal(t, uint16(50100), cfg.UDPPortMax)
}

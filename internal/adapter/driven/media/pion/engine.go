package pion

import (
	"fmt"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

type EngineConfig struct {
	// UDPPortMin and UDPPortMax restrict ICE sockets; zero leaves the OS choice.
	UDPPortMin uint16
	UDPPortMax uint16
	LogLevel   zerolog.Level
	// RegisterCodecs replaces the default codec set, for capture backends that
	// bring their own encoders.
	RegisterCodecs func(m *webrtc.MediaEngine) error
}

// NewAPI builds the webrtc API shared by every call of the process.
func NewAPI(cfg EngineConfig) (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	register := cfg.RegisterCodecs
	if register == nil {
		register = func(m *webrtc.MediaEngine) error { return m.RegisterDefaultCodecs() }
	}
	if err := register(m); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, registry); err != nil {
		return nil, fmt.Errorf("register default interceptors: %w", err)
	}

	se := webrtc.SettingEngine{
		LoggerFactory: LoggerFactory{Level: cfg.LogLevel},
	}
	if cfg.UDPPortMin != 0 || cfg.UDPPortMax != 0 {
		if err := se.SetEphemeralUDPPortRange(cfg.UDPPortMin, cfg.UDPPortMax); err != nil {
			return nil, fmt.Errorf("set ephemeral udp port range: %w", err)
		}
	}

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(se),
	), nil
}

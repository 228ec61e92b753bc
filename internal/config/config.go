package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Wyydra/peercall/internal/adapter/driven/signaling/peerjs"
	"github.com/Wyydra/peercall/internal/core/domain"
	"github.com/Wyydra/peercall/internal/core/service"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

const (
	envListenAddr      = "PEERCALL_LISTEN_ADDR"
	envStaticDir       = "PEERCALL_STATIC_DIR"
	envLogLevel        = "PEERCALL_LOG_LEVEL"
	envLogFormat       = "PEERCALL_LOG_FORMAT"
	envShutdownTimeout = "PEERCALL_SHUTDOWN_TIMEOUT"
	envLogCapacity     = "PEERCALL_LOG_CAPACITY"

	envPeerID             = "PEERCALL_PEER_ID"
	envSignalingHost      = "PEERCALL_SIGNALING_HOST"
	envSignalingPort      = "PEERCALL_SIGNALING_PORT"
	envSignalingPath      = "PEERCALL_SIGNALING_PATH"
	envSignalingKey       = "PEERCALL_SIGNALING_KEY"
	envSignalingSecure    = "PEERCALL_SIGNALING_SECURE"
	envSignalingHeartbeat = "PEERCALL_SIGNALING_HEARTBEAT"

	envUDPPortMin = "PEERCALL_UDP_PORT_MIN"
	envUDPPortMax = "PEERCALL_UDP_PORT_MAX"

	envAutoAnswer    = "PEERCALL_AUTO_ANSWER"
	envCaptureVideo  = "PEERCALL_CAPTURE_VIDEO"
	envCaptureWidth  = "PEERCALL_CAPTURE_WIDTH"
	envCaptureHeight = "PEERCALL_CAPTURE_HEIGHT"

	envStartSettle     = "PEERCALL_START_SETTLE"
	envAnswerSettle    = "PEERCALL_ANSWER_SETTLE"
	envLockCooldown    = "PEERCALL_LOCK_COOLDOWN"
	envFailureTeardown = "PEERCALL_FAILURE_TEARDOWN"
	envErrorRecovery   = "PEERCALL_ERROR_RECOVERY"
	envWatchdogWarn    = "PEERCALL_WATCHDOG_WARN_SECONDS"
	envWatchdogFail    = "PEERCALL_WATCHDOG_FAIL_SECONDS"

	DefaultListenAddr      = ":8080"
	DefaultStaticDir       = "./static"
	DefaultShutdownTimeout = 5 * time.Second
	DefaultLogCapacity     = 500
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

type Config struct {
	ListenAddr      string
	StaticDir       string
	LogLevel        zerolog.Level
	LogFormat       LogFormat
	ShutdownTimeout time.Duration
	LogCapacity     int

	Signaling  peerjs.Config
	ICEServers []webrtc.ICEServer
	UDPPortMin uint16
	UDPPortMax uint16

	Call service.Options
}

// Load reads the environment, then args. Flags override environment
// variables, which override defaults.
func Load(args []string) (Config, error) {
	return load(os.LookupEnv, args, os.Stderr)
}

func load(lookup func(string) (string, bool), args []string, output io.Writer) (Config, error) {
	call := service.DefaultOptions()
	t := call.Timings

	listenAddr := envOrDefault(lookup, envListenAddr, DefaultListenAddr)
	staticDir := envOrDefault(lookup, envStaticDir, DefaultStaticDir)
	logLevelStr := envOrDefault(lookup, envLogLevel, "info")
	logFormatStr := envOrDefault(lookup, envLogFormat, string(LogFormatText))
	peerID := envOrDefault(lookup, envPeerID, "")
	host := envOrDefault(lookup, envSignalingHost, peerjs.DefaultHost)
	path := envOrDefault(lookup, envSignalingPath, peerjs.DefaultPath)
	key := envOrDefault(lookup, envSignalingKey, peerjs.DefaultKey)

	iceServersJSON := envOrDefault(lookup, envICEServersJSON, "")
	stunURLs := envOrDefault(lookup, envStunURLs, "")
	turnURLs := envOrDefault(lookup, envTurnURLs, "")
	turnUsername := envOrDefault(lookup, envTurnUsername, "")
	turnCredential := envOrDefault(lookup, envTurnCredential, "")

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	shutdownTimeout, err := envDurationOrDefault(lookup, envShutdownTimeout, DefaultShutdownTimeout)
	collect(err)
	logCapacity, err := envIntOrDefault(lookup, envLogCapacity, DefaultLogCapacity)
	collect(err)
	port, err := envIntOrDefault(lookup, envSignalingPort, peerjs.DefaultPort)
	collect(err)
	secure, err := envBoolOrDefault(lookup, envSignalingSecure, true)
	collect(err)
	heartbeat, err := envDurationOrDefault(lookup, envSignalingHeartbeat, peerjs.DefaultHeartbeat)
	collect(err)
	udpPortMin, err := envIntOrDefault(lookup, envUDPPortMin, 0)
	collect(err)
	udpPortMax, err := envIntOrDefault(lookup, envUDPPortMax, 0)
	collect(err)

	autoAnswer, err := envBoolOrDefault(lookup, envAutoAnswer, call.AutoAnswer)
	collect(err)
	captureVideo, err := envBoolOrDefault(lookup, envCaptureVideo, call.Capture.Video)
	collect(err)
	captureWidth, err := envIntOrDefault(lookup, envCaptureWidth, call.Capture.Width)
	collect(err)
	captureHeight, err := envIntOrDefault(lookup, envCaptureHeight, call.Capture.Height)
	collect(err)

	startSettle, err := envDurationOrDefault(lookup, envStartSettle, t.StartSettleDelay)
	collect(err)
	answerSettle, err := envDurationOrDefault(lookup, envAnswerSettle, t.AnswerSettleDelay)
	collect(err)
	lockCooldown, err := envDurationOrDefault(lookup, envLockCooldown, t.LockCooldown)
	collect(err)
	failureTeardown, err := envDurationOrDefault(lookup, envFailureTeardown, t.FailureTeardownDelay)
	collect(err)
	errorRecovery, err := envDurationOrDefault(lookup, envErrorRecovery, t.ErrorRecoveryDelay)
	collect(err)
	watchdogWarn, err := envIntOrDefault(lookup, envWatchdogWarn, t.WatchdogWarnAfter)
	collect(err)
	watchdogFail, err := envIntOrDefault(lookup, envWatchdogFail, t.WatchdogFailAfter)
	collect(err)

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}

	fs := flag.NewFlagSet("peercall", flag.ContinueOnError)
	fs.SetOutput(output)

	fs.StringVar(&listenAddr, "listen-addr", listenAddr, "HTTP listen address for the UI (env "+envListenAddr+")")
	fs.StringVar(&staticDir, "static-dir", staticDir, "Directory served at / (env "+envStaticDir+")")
	fs.StringVar(&logLevelStr, "log-level", logLevelStr, "Log level: trace, debug, info, warn, error (env "+envLogLevel+")")
	fs.StringVar(&logFormatStr, "log-format", logFormatStr, "Log format: text or json (env "+envLogFormat+")")
	fs.DurationVar(&shutdownTimeout, "shutdown-timeout", shutdownTimeout, "Graceful shutdown timeout (env "+envShutdownTimeout+")")
	fs.IntVar(&logCapacity, "log-capacity", logCapacity, "Debug console entries kept in memory (env "+envLogCapacity+")")

	fs.StringVar(&peerID, "peer-id", peerID, "Peer id to register; random when empty (env "+envPeerID+")")
	fs.StringVar(&host, "signaling-host", host, "Signaling server host (env "+envSignalingHost+")")
	fs.IntVar(&port, "signaling-port", port, "Signaling server port (env "+envSignalingPort+")")
	fs.StringVar(&path, "signaling-path", path, "Signaling server path (env "+envSignalingPath+")")
	fs.StringVar(&key, "signaling-key", key, "Signaling server API key (env "+envSignalingKey+")")
	fs.BoolVar(&secure, "signaling-secure", secure, "Use wss for the signaling socket (env "+envSignalingSecure+")")
	fs.DurationVar(&heartbeat, "signaling-heartbeat", heartbeat, "Signaling heartbeat interval (env "+envSignalingHeartbeat+")")

	fs.StringVar(&iceServersJSON, "ice-servers-json", iceServersJSON, "ICE server JSON config (env "+envICEServersJSON+")")
	fs.StringVar(&stunURLs, "stun-urls", stunURLs, "Comma-separated STUN URLs (env "+envStunURLs+")")
	fs.StringVar(&turnURLs, "turn-urls", turnURLs, "Comma-separated TURN URLs (env "+envTurnURLs+")")
	fs.StringVar(&turnUsername, "turn-username", turnUsername, "TURN username (env "+envTurnUsername+")")
	fs.StringVar(&turnCredential, "turn-credential", turnCredential, "TURN credential (env "+envTurnCredential+")")
	fs.IntVar(&udpPortMin, "udp-port-min", udpPortMin, "Min UDP port for ICE, 0 = unset (env "+envUDPPortMin+")")
	fs.IntVar(&udpPortMax, "udp-port-max", udpPortMax, "Max UDP port for ICE, 0 = unset (env "+envUDPPortMax+")")

	fs.BoolVar(&autoAnswer, "auto-answer", autoAnswer, "Answer incoming calls without asking (env "+envAutoAnswer+")")
	fs.BoolVar(&captureVideo, "capture-video", captureVideo, "Request the camera (env "+envCaptureVideo+")")
	fs.IntVar(&captureWidth, "capture-width", captureWidth, "Preferred camera width (env "+envCaptureWidth+")")
	fs.IntVar(&captureHeight, "capture-height", captureHeight, "Preferred camera height (env "+envCaptureHeight+")")

	fs.DurationVar(&startSettle, "start-settle", startSettle, "Delay before an outgoing call is placed (env "+envStartSettle+")")
	fs.DurationVar(&answerSettle, "answer-settle", answerSettle, "Delay before an incoming call is answered (env "+envAnswerSettle+")")
	fs.DurationVar(&lockCooldown, "lock-cooldown", lockCooldown, "Lock hold time after ending a call (env "+envLockCooldown+")")
	fs.DurationVar(&failureTeardown, "failure-teardown", failureTeardown, "Delay before tearing down after ICE failure (env "+envFailureTeardown+")")
	fs.DurationVar(&errorRecovery, "error-recovery", errorRecovery, "Delay before returning to idle after a call error (env "+envErrorRecovery+")")
	fs.IntVar(&watchdogWarn, "watchdog-warn", watchdogWarn, "Seconds connecting before a slow-network warning (env "+envWatchdogWarn+")")
	fs.IntVar(&watchdogFail, "watchdog-fail", watchdogFail, "Seconds connecting before the call is abandoned (env "+envWatchdogFail+")")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}
	format, err := parseLogFormat(logFormatStr)
	if err != nil {
		return Config{}, err
	}
	iceServers, err := parseICEServersFromValues(iceServersJSON, stunURLs, turnURLs, turnUsername, turnCredential)
	if err != nil {
		return Config{}, err
	}
	portMin, err := parsePort(udpPortMin)
	if err != nil {
		return Config{}, fmt.Errorf("invalid udp-port-min: %w", err)
	}
	portMax, err := parsePort(udpPortMax)
	if err != nil {
		return Config{}, fmt.Errorf("invalid udp-port-max: %w", err)
	}

	call.AutoAnswer = autoAnswer
	call.Capture.Video = captureVideo
	call.Capture.Width = captureWidth
	call.Capture.Height = captureHeight
	call.Timings = service.Timings{
		StartSettleDelay:     startSettle,
		AnswerSettleDelay:    answerSettle,
		LockCooldown:         lockCooldown,
		FailureTeardownDelay: failureTeardown,
		ErrorRecoveryDelay:   errorRecovery,
		WatchdogWarnAfter:    watchdogWarn,
		WatchdogFailAfter:    watchdogFail,
	}

	cfg := Config{
		ListenAddr:      strings.TrimSpace(listenAddr),
		StaticDir:       staticDir,
		LogLevel:        level,
		LogFormat:       format,
		ShutdownTimeout: shutdownTimeout,
		LogCapacity:     logCapacity,
		Signaling: peerjs.Config{
			Host:      strings.TrimSpace(host),
			Port:      port,
			Path:      path,
			Key:       key,
			Secure:    secure,
			Heartbeat: heartbeat,
		},
		ICEServers: iceServers,
		UDPPortMin: portMin,
		UDPPortMax: portMax,
		Call:       call,
	}
	cfg.Signaling.PeerID = domain.PeerID(strings.TrimSpace(peerID))
	cfg.Signaling.ICE = webrtc.Configuration{ICEServers: iceServers}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("listen address must not be empty")
	}
	if c.Signaling.Host == "" {
		return errors.New("signaling host must not be empty")
	}
	if c.Signaling.Port <= 0 || c.Signaling.Port > 65535 {
		return fmt.Errorf("signaling port %d out of range", c.Signaling.Port)
	}
	if c.Signaling.Heartbeat <= 0 {
		return fmt.Errorf("signaling heartbeat must be positive (got %s)", c.Signaling.Heartbeat)
	}
	if (c.UDPPortMin == 0) != (c.UDPPortMax == 0) {
		return errors.New("udp port min and max must be set together (or both unset)")
	}
	if c.UDPPortMin > c.UDPPortMax {
		return fmt.Errorf("udp port range %d-%d is inverted", c.UDPPortMin, c.UDPPortMax)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive (got %s)", c.ShutdownTimeout)
	}
	if c.LogCapacity <= 0 {
		return fmt.Errorf("log capacity must be positive (got %d)", c.LogCapacity)
	}
	if c.Call.Capture.Width < 0 || c.Call.Capture.Height < 0 {
		return errors.New("capture size must not be negative")
	}
	return c.Call.Timings.Validate()
}

// NewLogger builds the process logger.
func NewLogger(cfg Config, out io.Writer) zerolog.Logger {
	if cfg.LogFormat == LogFormatText {
		out = zerolog.ConsoleWriter{Out: out}
	}
	return zerolog.New(out).Level(cfg.LogLevel).With().Timestamp().Caller().Logger()
}

func envOrDefault(lookup func(string) (string, bool), key, fallback string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(lookup func(string) (string, bool), key string, fallback int) (int, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envBoolOrDefault(lookup func(string) (string, bool), key string, fallback bool) (bool, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return b, nil
}

func envDurationOrDefault(lookup func(string) (string, bool), key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func parseLogLevel(raw string) (zerolog.Level, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(raw)))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", raw, err)
	}
	return level, nil
}

func parseLogFormat(raw string) (LogFormat, error) {
	switch LogFormat(strings.ToLower(strings.TrimSpace(raw))) {
	case LogFormatText:
		return LogFormatText, nil
	case LogFormatJSON:
		return LogFormatJSON, nil
	default:
		return "", fmt.Errorf("invalid log format %q (expected text or json)", raw)
	}
}

func parsePort(v int) (uint16, error) {
	if v < 0 || v > 65535 {
		return 0, fmt.Errorf("port %d out of range", v)
	}
	return uint16(v), nil
}

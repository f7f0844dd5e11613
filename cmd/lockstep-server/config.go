package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type appConfig struct {
	listenAddr      string
	dataAddr        string
	publicAddr      string
	logFormat       string
	logLevel        string
	metricsAddr     string
	hubBuffer       int
	hubPolicy       string
	logMetricsEvery time.Duration
	tickInterval    time.Duration
	idleTimeout     time.Duration
	mdnsEnable      bool
	mdnsName        string
}

// defaultAddr is the spec §6 fallback for the HTTP, datagram-data, and
// datagram-public addresses when PORT is unset.
const defaultAddr = "127.0.0.1:3030"

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	listen := flag.String("listen", defaultAddr, "HTTP listen address (serves /new_rtc_session and /state)")
	dataAddr := flag.String("data-addr", defaultAddr, "Datagram-data bind address for the WebRTC data channel")
	publicAddr := flag.String("public-addr", defaultAddr, "Datagram-public address advertised to peers via NAT1:1")
	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	hubBuf := flag.Int("hub-buffer", 256, "Per-peer outbound datagram buffer depth")
	hubPolicy := flag.String("hub-policy", "drop", "Backpressure policy: drop|kick")
	logMetricsEvery := flag.Duration("log-metrics-interval", 0, "If >0, periodically log metrics counters (for non-Prometheus setups)")
	tickInterval := flag.Duration("tick-interval", 0, "Override the 60Hz simulation tick period (0 = default ~16.666ms)")
	idleTimeout := flag.Duration("idle-timeout", 30*time.Second, "Drop a peer after this long with no inbound datagrams")
	mdnsEnable := flag.Bool("mdns-enable", false, "Enable mDNS advertisement of this server")
	mdnsName := flag.String("mdns-name", "", "mDNS instance name (default nbody-server-<hostname>)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	// Track which flags were explicitly set to give them precedence over env.
	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })
	cfg.listenAddr = *listen
	cfg.dataAddr = *dataAddr
	cfg.publicAddr = *publicAddr
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
	cfg.metricsAddr = *metricsAddr
	cfg.hubBuffer = *hubBuf
	cfg.hubPolicy = *hubPolicy
	cfg.logMetricsEvery = *logMetricsEvery
	cfg.tickInterval = *tickInterval
	cfg.idleTimeout = *idleTimeout
	cfg.mdnsEnable = *mdnsEnable
	cfg.mdnsName = *mdnsName

	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		fmt.Printf("environment override error: %v\n", err)
		return nil, *showVersion
	}
	if err := applyPortOverride(cfg, setFlags); err != nil {
		fmt.Printf("environment override error: %v\n", err)
		return nil, *showVersion
	}
	if err := cfg.validate(); err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

// validate performs basic semantic validation of the parsed configuration.
// It does not attempt to open listeners – only checks values/ranges.
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	switch c.hubPolicy {
	case "drop", "kick":
	default:
		return fmt.Errorf("invalid hub-policy: %s", c.hubPolicy)
	}
	if c.hubBuffer <= 0 {
		return fmt.Errorf("hub-buffer must be > 0 (got %d)", c.hubBuffer)
	}
	if c.idleTimeout <= 0 {
		return fmt.Errorf("idle-timeout must be > 0")
	}
	if c.tickInterval < 0 {
		return fmt.Errorf("tick-interval must be >= 0")
	}
	return nil
}

// applyPortOverride implements spec §6's PORT variable: when set, the
// HTTP, datagram-data, and datagram-public addresses all bind
// 0.0.0.0:PORT, taking precedence over their individual defaults but
// never over an address the operator explicitly named with a flag.
// PORT is layered last, after the NBODY_SERVER_* overrides, mirroring
// how the teacher's config.go lets explicit flags win over everything.
func applyPortOverride(c *appConfig, set map[string]struct{}) error {
	raw, ok := os.LookupEnv("PORT")
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	port, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 16)
	if err != nil {
		return fmt.Errorf("invalid PORT: %w", err)
	}
	addr := fmt.Sprintf("0.0.0.0:%d", port)
	if _, ok := set["listen"]; !ok {
		c.listenAddr = addr
	}
	if _, ok := set["data-addr"]; !ok {
		c.dataAddr = addr
	}
	if _, ok := set["public-addr"]; !ok {
		c.publicAddr = addr
	}
	return nil
}

// applyEnvOverrides maps NBODY_SERVER_* environment variables to config
// fields unless a corresponding flag was explicitly set. Boolean & numeric
// parsing is lax: empty values ignored. Duration accepts Go time.ParseDuration
// format.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }
	if _, ok := set["listen"]; !ok {
		if v, ok := get("NBODY_SERVER_LISTEN"); ok && v != "" {
			c.listenAddr = v
		}
	}
	if _, ok := set["log-format"]; !ok {
		if v, ok := get("NBODY_SERVER_LOG_FORMAT"); ok && v != "" {
			c.logFormat = v
		}
	}
	if _, ok := set["log-level"]; !ok {
		if v, ok := get("NBODY_SERVER_LOG_LEVEL"); ok && v != "" {
			c.logLevel = v
		}
	}
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("NBODY_SERVER_METRICS"); ok {
			c.metricsAddr = v
		}
	}
	if _, ok := set["hub-buffer"]; !ok {
		if v, ok := get("NBODY_SERVER_HUB_BUFFER"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.hubBuffer = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid NBODY_SERVER_HUB_BUFFER: %w", err)
			}
		}
	}
	if _, ok := set["hub-policy"]; !ok {
		if v, ok := get("NBODY_SERVER_HUB_POLICY"); ok && v != "" {
			c.hubPolicy = v
		}
	}
	if _, ok := set["idle-timeout"]; !ok {
		if v, ok := get("NBODY_SERVER_IDLE_TIMEOUT"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.idleTimeout = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid NBODY_SERVER_IDLE_TIMEOUT: %w", err)
			}
		}
	}
	if _, ok := set["tick-interval"]; !ok {
		if v, ok := get("NBODY_SERVER_TICK_INTERVAL"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d >= 0 {
				c.tickInterval = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid NBODY_SERVER_TICK_INTERVAL: %w", err)
			}
		}
	}
	if _, ok := set["mdns-enable"]; !ok {
		if v, ok := get("NBODY_SERVER_MDNS_ENABLE"); ok && v != "" {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "on":
				c.mdnsEnable = true
			case "0", "false", "no", "off":
				c.mdnsEnable = false
			}
		}
	}
	if _, ok := set["mdns-name"]; !ok {
		if v, ok := get("NBODY_SERVER_MDNS_NAME"); ok && v != "" {
			c.mdnsName = v
		}
	}
	if _, ok := set["log-metrics-interval"]; !ok {
		if v, ok := get("NBODY_SERVER_LOG_METRICS_INTERVAL"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d >= 0 {
				c.logMetricsEvery = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid NBODY_SERVER_LOG_METRICS_INTERVAL: %w", err)
			}
		}
	}
	return firstErr
}

package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	defaultBackend              = "sim"
	defaultDeviceFamily         = "versal"
	defaultRegisterPollInterval = 20 * time.Millisecond
	defaultLtssmPollInterval    = 10 * time.Millisecond
	defaultIlaPollInterval      = 10 * time.Millisecond
	defaultIlaMonitorMaxWait    = 600 * time.Millisecond
	defaultStuckWarnInterval    = 5 * time.Second
	defaultLogLevel             = "info"
	defaultHorizontalStep       = 2
	defaultVerticalStep         = 2
	defaultHorizontalRange      = "-0.500 UI to 0.500 UI"
	defaultVerticalRange        = "100%"
	defaultTargetBER            = 1e-5

	// EnvHWServerURL overrides the hardware server URL passed to Connect.
	EnvHWServerURL = "HW_SERVER_URL"
	// EnvCSServerURL overrides the ChipScope server URL passed to Connect.
	EnvCSServerURL = "CS_SERVER_URL"
)

// Config stores runtime settings loaded from TOML files.
type Config struct {
	Backend              string
	HWServerURL          string
	CSServerURL          string
	DeviceFamily         string
	RegisterPollInterval time.Duration
	LtssmPollInterval    time.Duration
	IlaPollInterval      time.Duration
	IlaMonitorMaxWait    time.Duration
	StuckWarnInterval    time.Duration
	TeardownTimeout      time.Duration
	RegisterJournal      string
	LogLevel             string
	OTELEndpoint         string
	EyeScan              EyeScanDefaults
}

// EyeScanDefaults seeds the parameters applied to every eye scan.
type EyeScanDefaults struct {
	HorizontalStep  int
	VerticalStep    int
	HorizontalRange string
	VerticalRange   string
	TargetBER       float64
}

type fileConfig struct {
	Backend              *string         `toml:"backend"`
	HWServerURL          *string         `toml:"hw_server_url"`
	CSServerURL          *string         `toml:"cs_server_url"`
	DeviceFamily         *string         `toml:"device_family"`
	RegisterPollInterval *string         `toml:"register_poll_interval"`
	LtssmPollInterval    *string         `toml:"ltssm_poll_interval"`
	IlaPollInterval      *string         `toml:"ila_poll_interval"`
	IlaMonitorMaxWait    *string         `toml:"ila_monitor_max_wait"`
	StuckWarnInterval    *string         `toml:"stuck_warn_interval"`
	TeardownTimeout      *string         `toml:"teardown_timeout"`
	RegisterJournal      *string         `toml:"register_journal"`
	LogLevel             *string         `toml:"log_level"`
	OTELEndpoint         *string         `toml:"otel_endpoint"`
	EyeScan              *eyeScanSection `toml:"eye_scan"`
}

type eyeScanSection struct {
	HorizontalStep  *int     `toml:"horizontal_step"`
	VerticalStep    *int     `toml:"vertical_step"`
	HorizontalRange *string  `toml:"horizontal_range"`
	VerticalRange   *string  `toml:"vertical_range"`
	TargetBER       *float64 `toml:"target_ber"`
}

// Load reads config from ~/.vdbg/config.toml and overlays a project-local .vdbg/config.toml.
// Server URLs from the environment win over both files.
func Load(ctx context.Context) (*Config, error) {
	cfg := Defaults()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	workingDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}

	paths := []string{
		filepath.Join(homeDir, ".vdbg", "config.toml"),
		filepath.Join(workingDir, ".vdbg", "config.toml"),
	}

	for _, path := range paths {
		if err := overlayFromFile(&cfg, path); err != nil {
			return nil, err
		}
	}
	applyEnvOverrides(&cfg)

	_ = ctx
	return &cfg, nil
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Backend:              defaultBackend,
		DeviceFamily:         defaultDeviceFamily,
		RegisterPollInterval: defaultRegisterPollInterval,
		LtssmPollInterval:    defaultLtssmPollInterval,
		IlaPollInterval:      defaultIlaPollInterval,
		IlaMonitorMaxWait:    defaultIlaMonitorMaxWait,
		StuckWarnInterval:    defaultStuckWarnInterval,
		LogLevel:             defaultLogLevel,
		EyeScan: EyeScanDefaults{
			HorizontalStep:  defaultHorizontalStep,
			VerticalStep:    defaultVerticalStep,
			HorizontalRange: defaultHorizontalRange,
			VerticalRange:   defaultVerticalRange,
			TargetBER:       defaultTargetBER,
		},
	}
}

// ResolveServers picks the server URLs for a connection attempt.
// Environment variables take precedence over the explicit arguments, which take
// precedence over the configured values.
func (c *Config) ResolveServers(hwURL, csURL string) (string, string) {
	hw := firstNonEmpty(os.Getenv(EnvHWServerURL), hwURL)
	cs := firstNonEmpty(os.Getenv(EnvCSServerURL), csURL)
	if c != nil {
		hw = firstNonEmpty(hw, c.HWServerURL)
		cs = firstNonEmpty(cs, c.CSServerURL)
	}
	return hw, cs
}

func overlayFromFile(cfg *Config, path string) error {
	if cfg == nil {
		return errors.New("config must not be nil")
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat config file %q: %w", path, err)
	}

	var decoded fileConfig
	if _, err := toml.DecodeFile(path, &decoded); err != nil {
		return fmt.Errorf("decode config file %q: %w", path, err)
	}

	applyScalarOverrides(cfg, decoded)
	if err := applyDurationOverrides(cfg, decoded, path); err != nil {
		return err
	}
	if err := applyEyeScanOverrides(cfg, decoded.EyeScan, path); err != nil {
		return err
	}
	return nil
}

func applyScalarOverrides(cfg *Config, decoded fileConfig) {
	if decoded.Backend != nil {
		cfg.Backend = normalizeKey(*decoded.Backend)
	}
	if decoded.HWServerURL != nil {
		cfg.HWServerURL = strings.TrimSpace(*decoded.HWServerURL)
	}
	if decoded.CSServerURL != nil {
		cfg.CSServerURL = strings.TrimSpace(*decoded.CSServerURL)
	}
	if decoded.DeviceFamily != nil {
		cfg.DeviceFamily = normalizeKey(*decoded.DeviceFamily)
	}
	if decoded.RegisterJournal != nil {
		cfg.RegisterJournal = strings.TrimSpace(*decoded.RegisterJournal)
	}
	if decoded.LogLevel != nil {
		cfg.LogLevel = normalizeKey(*decoded.LogLevel)
	}
	if decoded.OTELEndpoint != nil {
		cfg.OTELEndpoint = strings.TrimSpace(*decoded.OTELEndpoint)
	}
}

func applyDurationOverrides(cfg *Config, decoded fileConfig, path string) error {
	targets := []struct {
		key   string
		value *string
		dst   *time.Duration
		zero  bool
	}{
		{"register_poll_interval", decoded.RegisterPollInterval, &cfg.RegisterPollInterval, false},
		{"ltssm_poll_interval", decoded.LtssmPollInterval, &cfg.LtssmPollInterval, false},
		{"ila_poll_interval", decoded.IlaPollInterval, &cfg.IlaPollInterval, false},
		{"ila_monitor_max_wait", decoded.IlaMonitorMaxWait, &cfg.IlaMonitorMaxWait, false},
		{"stuck_warn_interval", decoded.StuckWarnInterval, &cfg.StuckWarnInterval, false},
		{"teardown_timeout", decoded.TeardownTimeout, &cfg.TeardownTimeout, true},
	}
	for _, target := range targets {
		if target.value == nil {
			continue
		}
		parsed, err := parseDuration(*target.value, target.key, path)
		if err != nil {
			return err
		}
		if parsed < 0 || (parsed == 0 && !target.zero) {
			return fmt.Errorf("parse %s in %q: must be > 0", target.key, path)
		}
		*target.dst = parsed
	}
	return nil
}

func applyEyeScanOverrides(cfg *Config, section *eyeScanSection, path string) error {
	if section == nil {
		return nil
	}
	if section.HorizontalStep != nil {
		if *section.HorizontalStep <= 0 {
			return fmt.Errorf("parse eye_scan.horizontal_step in %q: must be > 0", path)
		}
		cfg.EyeScan.HorizontalStep = *section.HorizontalStep
	}
	if section.VerticalStep != nil {
		if *section.VerticalStep <= 0 {
			return fmt.Errorf("parse eye_scan.vertical_step in %q: must be > 0", path)
		}
		cfg.EyeScan.VerticalStep = *section.VerticalStep
	}
	if section.HorizontalRange != nil {
		cfg.EyeScan.HorizontalRange = strings.TrimSpace(*section.HorizontalRange)
	}
	if section.VerticalRange != nil {
		cfg.EyeScan.VerticalRange = strings.TrimSpace(*section.VerticalRange)
	}
	if section.TargetBER != nil {
		if *section.TargetBER <= 0 || *section.TargetBER >= 1 {
			return fmt.Errorf("parse eye_scan.target_ber in %q: must be between 0 and 1", path)
		}
		cfg.EyeScan.TargetBER = *section.TargetBER
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if value := strings.TrimSpace(os.Getenv(EnvHWServerURL)); value != "" {
		cfg.HWServerURL = value
	}
	if value := strings.TrimSpace(os.Getenv(EnvCSServerURL)); value != "" {
		cfg.CSServerURL = value
	}
}

func parseDuration(value, key, path string) (time.Duration, error) {
	parsed, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("parse %s in %q: %w", key, path, err)
	}
	return parsed, nil
}

func normalizeKey(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

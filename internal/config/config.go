// Package config reads and writes wise-magpie's TOML config file and
// resolves the config directory layout.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Quota mirrors the `[quota]` TOML table.
type Quota struct {
	WindowHours  int            `toml:"window_hours"`
	SafetyMargin float64        `toml:"safety_margin"`
	Limits       map[string]int `toml:"limits"`
}

// Budget mirrors the `[budget]` TOML table.
type Budget struct {
	MaxTaskUSD  float64 `toml:"max_task_usd"`
	MaxDailyUSD float64 `toml:"max_daily_usd"`
}

// Activity mirrors the `[activity]` TOML table.
type Activity struct {
	IdleThresholdMinutes int `toml:"idle_threshold_minutes"`
	ReturnBufferMinutes  int `toml:"return_buffer_minutes"`
}

// Daemon mirrors the `[daemon]` TOML table.
type Daemon struct {
	PollIntervalSeconds     int `toml:"poll_interval"`
	AutoSyncIntervalMinutes int `toml:"auto_sync_interval_minutes"`
	ScanIntervalMinutes     int `toml:"scan_interval_minutes"`
}

// Assistant mirrors the `[assistant]` TOML table.
type Assistant struct {
	Model           string   `toml:"model"`
	AutoSelectModel bool     `toml:"auto_select_model"`
	ExtraFlags      []string `toml:"extra_flags"`
}

// TemplateOverride mirrors one `[auto_tasks.<task_type>]` sub-table.
type TemplateOverride struct {
	Enabled       *bool `toml:"enabled"`
	IntervalHours *int  `toml:"interval_hours"`
	MinCommits    *int  `toml:"min_commits"`
}

// AutoTasks mirrors the `[auto_tasks]` table. Per-template overrides live
// at arbitrary sub-table keys alongside the two scalar fields, which
// go-toml/v2 can't express as a single struct (no catch-all-remaining-keys
// tag), so Load parses the raw table twice: once into AutoTasks for the
// scalars, once into a generic map to recover the per-template overrides.
type AutoTasks struct {
	Enabled   bool                        `toml:"enabled"`
	WorkDir   string                      `toml:"work_dir"`
	Templates map[string]TemplateOverride `toml:"-"`
}

// Config is the full parsed config.toml.
type Config struct {
	Quota     Quota     `toml:"quota"`
	Budget    Budget    `toml:"budget"`
	Activity  Activity  `toml:"activity"`
	Daemon    Daemon    `toml:"daemon"`
	Assistant Assistant `toml:"assistant"`
	AutoTasks AutoTasks `toml:"auto_tasks"`
}

var reservedAutoTaskKeys = map[string]bool{"enabled": true, "work_dir": true}

// Default returns the out-of-the-box configuration.
func Default() Config {
	return Config{
		Quota: Quota{
			WindowHours:  5,
			SafetyMargin: 0.15,
			Limits:       map[string]int{"opus": 50, "sonnet": 200, "haiku": 500},
		},
		Budget: Budget{MaxTaskUSD: 2.0, MaxDailyUSD: 10.0},
		Activity: Activity{
			IdleThresholdMinutes: 30,
			ReturnBufferMinutes:  15,
		},
		Daemon: Daemon{
			PollIntervalSeconds:     60,
			AutoSyncIntervalMinutes: 30,
			ScanIntervalMinutes:     15,
		},
		Assistant: Assistant{
			Model:           "sonnet",
			AutoSelectModel: true,
		},
		AutoTasks: AutoTasks{Enabled: false, WorkDir: "."},
	}
}

// Load reads and parses the config file at path, filling in defaults for
// any table TOML did not set (Marshal always rendered every table in the
// file produced by Init, but hand-edited files may omit whole sections).
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	var raw map[string]interface{}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.AutoTasks.Templates = extractTemplateOverrides(raw["auto_tasks"])

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func extractTemplateOverrides(section interface{}) map[string]TemplateOverride {
	table, ok := section.(map[string]interface{})
	if !ok {
		return nil
	}
	overrides := map[string]TemplateOverride{}
	for key, value := range table {
		if reservedAutoTaskKeys[key] {
			continue
		}
		sub, ok := value.(map[string]interface{})
		if !ok {
			continue
		}
		var o TemplateOverride
		if v, ok := sub["enabled"].(bool); ok {
			o.Enabled = &v
		}
		if v, ok := toInt(sub["interval_hours"]); ok {
			o.IntervalHours = &v
		}
		if v, ok := toInt(sub["min_commits"]); ok {
			o.MinCommits = &v
		}
		overrides[key] = o
	}
	if len(overrides) == 0 {
		return nil
	}
	return overrides
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int64:
		return int(n), true
	case int:
		return n, true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// Validate checks structural bounds on config values.
func (c Config) Validate() error {
	if c.Quota.WindowHours <= 0 {
		return fmt.Errorf("config: quota.window_hours must be positive")
	}
	if c.Quota.SafetyMargin < 0 || c.Quota.SafetyMargin >= 1 {
		return fmt.Errorf("config: quota.safety_margin must be in [0, 1)")
	}
	if c.Daemon.PollIntervalSeconds <= 0 {
		return fmt.Errorf("config: daemon.poll_interval must be positive")
	}
	return nil
}

// Save writes cfg to path as TOML, creating parent directories as needed.
func Save(path string, cfg Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create directory: %w", err)
		}
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// Init writes the default config to path unless a file already exists
// there.
func Init(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config: %s already exists", path)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("config: stat %s: %w", path, err)
	}
	return Save(path, Default())
}

// Dir resolves the config directory: WISE_MAGPIE_CONFIG_DIR if set,
// otherwise ~/.config/wise-magpie.
func Dir() (string, error) {
	if override := os.Getenv("WISE_MAGPIE_CONFIG_DIR"); override != "" {
		return override, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "wise-magpie"), nil
}

// Paths is the resolved set of files under the config directory.
type Paths struct {
	Dir         string
	ConfigFile  string
	DBFile      string
	PIDFile     string
	LogFile     string
	ControlSock string
}

// ResolvePaths returns the standard file layout under dir.
func ResolvePaths(dir string) Paths {
	return Paths{
		Dir:         dir,
		ConfigFile:  filepath.Join(dir, "config.toml"),
		DBFile:      filepath.Join(dir, "tasks.db"),
		PIDFile:     filepath.Join(dir, "wise-magpie.pid"),
		LogFile:     filepath.Join(dir, "wise-magpie.log"),
		ControlSock: filepath.Join(dir, "control.sock"),
	}
}

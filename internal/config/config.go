// Package config loads the runtime's YAML configuration file: heap bucket
// table, NVRAM path, application port, link timeout, language table, and
// console/debug knobs. Defaults first, then file overrides — no
// environment-variable sprawl, matching the teacher's settings.json loader.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Bucket is one entry of the pool heap's bucket table (spec §3).
type Bucket struct {
	Size      int    `yaml:"size"`
	Count     int    `yaml:"count"`
	Borrow    bool   `yaml:"borrow"`
	HeapIndex int    `yaml:"heap_index"`
	Align     int    `yaml:"align"`
	Name      string `yaml:"name,omitempty"`
}

// Config is the full runtime configuration.
type Config struct {
	// Identity
	DeviceName   string `yaml:"device_name"`
	Manufacturer string `yaml:"manufacturer"`
	ModelNumber  string `yaml:"model_number"`

	// Bus
	ApplicationPort uint16        `yaml:"application_port"`
	LinkTimeout     time.Duration `yaml:"link_timeout"`

	// Storage
	NVRAMPath string `yaml:"nvram_path"`

	// Heap
	Buckets []Bucket `yaml:"buckets"`

	// Languages: BCP-47 tags, first is the default.
	Languages []string `yaml:"languages"`

	// Console/debug
	ConsoleEnabled     bool `yaml:"console_enabled"`
	DebugEnabled       bool `yaml:"debug_enabled"`
	RequireConsoleAuth bool `yaml:"require_console_auth"`
	MaxEvalLen         int  `yaml:"max_eval_len"`
	MaxScriptLen       int  `yaml:"max_script_len"`
	EvalRatePerSec     int  `yaml:"eval_rate_per_sec"`
	EvalRateBurst      int  `yaml:"eval_rate_burst"`
}

// Default returns the built-in configuration used when no file is present.
func Default() *Config {
	return &Config{
		DeviceName:      "",
		Manufacturer:    "AllJoyn.js",
		ModelNumber:     "ajcore-1",
		ApplicationPort: 2,
		LinkTimeout:     30 * time.Second,
		NVRAMPath:       "ajcore.nvram",
		Buckets: []Bucket{
			{Size: 16, Count: 64, Align: 4, Name: "tiny"},
			{Size: 32, Count: 64, Align: 4, Name: "small"},
			{Size: 64, Count: 32, Align: 8, Name: "medium"},
			{Size: 128, Count: 16, Align: 8, Borrow: true, Name: "large"},
			{Size: 512, Count: 8, Align: 8, Borrow: true, Name: "xlarge"},
		},
		Languages:      []string{"en"},
		ConsoleEnabled: true,
		DebugEnabled:   true,
		MaxEvalLen:     1024,
		MaxScriptLen:   64 * 1024,
		EvalRatePerSec: 5,
		EvalRateBurst:  10,
	}
}

// Load reads path, merging onto Default(). A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path as YAML.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

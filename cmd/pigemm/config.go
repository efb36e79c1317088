package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the pigemm configuration file
// (~/.config/pigemm/config.yaml). Pointer fields distinguish "not set" from
// zero values.
type Config struct {
	// Problem
	Size    *int64 `yaml:"size"`
	Seed    *int64 `yaml:"seed"`
	Init    string `yaml:"init"`
	Threads *int64 `yaml:"threads"`
	NoSIMD  *bool  `yaml:"no_simd"`

	// Output
	Order     string `yaml:"order"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Cluster
	Strategy    string `yaml:"strategy"`
	Procs       *int64 `yaml:"procs"`
	Listen      string `yaml:"listen"`
	Coordinator string `yaml:"coordinator"`
}

// fileConfig is loaded by the root Before hook.
var fileConfig Config

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "pigemm", "config.yaml")
}

// applyLoggingConfig applies config file defaults to the root flags when the
// corresponding flag was not explicitly set.
func applyLoggingConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
	if cfg.NoSIMD != nil && !c.IsSet("no-simd") {
		noSIMD = *cfg.NoSIMD
	}
}

// applyProblemConfig applies config file defaults to the operand, pool and
// output flags.
func applyProblemConfig(c *cli.Command, cfg Config) {
	if cfg.Size != nil && !c.IsSet("size") {
		size = *cfg.Size
	}
	if cfg.Seed != nil && !c.IsSet("seed") {
		seed = *cfg.Seed
	}
	if cfg.Init != "" && !c.IsSet("init") {
		initMode = cfg.Init
	}
	if cfg.Threads != nil && !c.IsSet("threads") {
		threads = *cfg.Threads
	}
	if cfg.Order != "" && !c.IsSet("order") {
		order = cfg.Order
	}
}

// applyClusterConfig applies config file defaults to the cluster command
// variables. Nil pointers are skipped for commands without that flag.
func applyClusterConfig(c *cli.Command, cfg Config, strategy *string, procs *int64, listen, coordinator *string) {
	if strategy != nil && cfg.Strategy != "" && !c.IsSet("strategy") {
		*strategy = cfg.Strategy
	}
	if procs != nil && cfg.Procs != nil && !c.IsSet("procs") {
		*procs = *cfg.Procs
	}
	if listen != nil && cfg.Listen != "" && !c.IsSet("addr") {
		*listen = cfg.Listen
	}
	if coordinator != nil && cfg.Coordinator != "" && !c.IsSet("coordinator") {
		*coordinator = cfg.Coordinator
	}
}

// LoadConfig reads the config file at path, or the default location when
// path is empty. A missing file yields a zero Config.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		path = configPath()
	}
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

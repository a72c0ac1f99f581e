// Package config loads CLI settings from a YAML file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
	"k8s.io/utils/cpuset"

	"github.com/srodi/taskstats/pkg/netlink"
)

const (
	DefaultInterval = 5 * time.Second
	// DefaultTopK controls how many tasks watch mode shows per table.
	DefaultTopK       = 5
	DefaultListenAddr = ":9866"
	DefaultLogLevel   = "info"
)

// Config is the union of settings the subcommands read. Flags given on the
// command line override values loaded from a file.
type Config struct {
	Interval   time.Duration `yaml:"interval"`
	TopK       int           `yaml:"topk"`
	HideKernel *bool         `yaml:"hide_kernel"`
	CommFilter string        `yaml:"comm_filter"`

	PIDs  []uint32 `yaml:"pids"`
	TGIDs []uint32 `yaml:"tgids"`

	CPUMask        string `yaml:"cpumask"`
	RcvBuf         int    `yaml:"rcvbuf"`
	MaxMessageSize int    `yaml:"max_message_size"`

	Listen   string `yaml:"listen"`
	LogLevel string `yaml:"log_level"`
}

// Default returns the settings used when neither a file nor flags set them.
func Default() Config {
	hide := true
	return Config{
		Interval:       DefaultInterval,
		TopK:           DefaultTopK,
		HideKernel:     &hide,
		MaxMessageSize: netlink.DefaultMaxMessageSize,
		Listen:         DefaultListenAddr,
		LogLevel:       DefaultLogLevel,
	}
}

// Load reads path on top of Default. An empty path returns the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(bytes.NewReader(data))
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML document on top of Default, normalizes and validates
// it. Unknown keys are rejected.
func Parse(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Normalize replaces out-of-range values with usable ones.
func (c *Config) Normalize() {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.TopK <= 0 {
		c.TopK = 1
	}
	if c.HideKernel == nil {
		hide := true
		c.HideKernel = &hide
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = netlink.DefaultMaxMessageSize
	}
	c.CommFilter = strings.ToLower(strings.TrimSpace(c.CommFilter))
	c.CPUMask = strings.TrimSpace(c.CPUMask)
	c.LogLevel = strings.TrimSpace(c.LogLevel)
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
}

// Validate reports the first setting that cannot be used.
func (c Config) Validate() error {
	if c.CPUMask != "" {
		set, err := cpuset.Parse(c.CPUMask)
		if err != nil {
			return fmt.Errorf("cpumask %q: %w", c.CPUMask, err)
		}
		if set.IsEmpty() {
			return fmt.Errorf("cpumask %q selects no cpus", c.CPUMask)
		}
	}
	if c.RcvBuf < 0 {
		return fmt.Errorf("rcvbuf must not be negative, got %d", c.RcvBuf)
	}
	if c.MaxMessageSize < netlink.HeaderLen+netlink.GenlHeaderLen+4 {
		return fmt.Errorf("max_message_size %d cannot hold a single attribute", c.MaxMessageSize)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if c.Listen != "" {
		if _, _, err := net.SplitHostPort(c.Listen); err != nil {
			return fmt.Errorf("listen %q: %w", c.Listen, err)
		}
	}
	return nil
}

// Level returns the parsed log level. It assumes Validate passed.
func (c Config) Level() zapcore.Level {
	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

// CPUSet returns the parsed cpumask, empty when none is configured.
func (c Config) CPUSet() (cpuset.CPUSet, error) {
	if c.CPUMask == "" {
		return cpuset.New(), nil
	}
	return cpuset.Parse(c.CPUMask)
}

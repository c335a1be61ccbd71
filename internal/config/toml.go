// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Practice  PracticeConfig  `toml:"practice"`
	Messaging MessagingConfig `toml:"messaging"`
}

// PracticeConfig maps practice-related settings.
type PracticeConfig struct {
	InPlace              *bool `toml:"in-place"`
	ShowHints            *bool `toml:"show-hints"`
	UpdateFrequencyMs    *int  `toml:"update-frequency-ms"`
	ValidationIntervalMs *int  `toml:"validation-interval-ms"`
	EndOnHidden          *bool `toml:"end-on-hidden"`
	SaveTimeoutMs        *int  `toml:"save-timeout-ms"`
	MinLength            *int  `toml:"min-length"`
	MaxLength            *int  `toml:"max-length"`
}

// MessagingConfig maps the local control channel.
type MessagingConfig struct {
	Listen *string `toml:"listen"`
}

// Practice is the resolved practice configuration.
type Practice struct {
	InPlace            bool
	ShowHints          bool
	UpdateFrequency    time.Duration
	ValidationInterval time.Duration
	EndOnHidden        bool
	SaveTimeout        time.Duration
	MinLength          int
	MaxLength          int
	Listen             string
}

// DefaultPractice returns built-in defaults.
func DefaultPractice() Practice {
	return Practice{
		ShowHints:          true,
		UpdateFrequency:    100 * time.Millisecond,
		ValidationInterval: 3 * time.Second,
		SaveTimeout:        5 * time.Second,
		MinLength:          3,
		MaxLength:          10000,
	}
}

// Resolve applies file values over defaults.
func (c FileConfig) Resolve() Practice {
	p := DefaultPractice()
	if v := c.Practice.InPlace; v != nil {
		p.InPlace = *v
	}
	if v := c.Practice.ShowHints; v != nil {
		p.ShowHints = *v
	}
	if v := c.Practice.UpdateFrequencyMs; v != nil && *v > 0 {
		p.UpdateFrequency = time.Duration(*v) * time.Millisecond
	}
	if v := c.Practice.ValidationIntervalMs; v != nil {
		// Negative disables periodic validation.
		p.ValidationInterval = time.Duration(*v) * time.Millisecond
		if *v < 0 {
			p.ValidationInterval = -1
		}
	}
	if v := c.Practice.EndOnHidden; v != nil {
		p.EndOnHidden = *v
	}
	if v := c.Practice.SaveTimeoutMs; v != nil && *v > 0 {
		p.SaveTimeout = time.Duration(*v) * time.Millisecond
	}
	if v := c.Practice.MinLength; v != nil && *v > 0 {
		p.MinLength = *v
	}
	if v := c.Practice.MaxLength; v != nil && *v > 0 {
		p.MaxLength = *v
	}
	if v := c.Messaging.Listen; v != nil {
		p.Listen = *v
	}
	return p
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return FileConfig{}, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}
	return cfg, nil
}

// Template is written by `overtype config` when no file exists.
const Template = `# overtype configuration

[practice]
# Type over the original text instead of a floating overlay.
# in-place = false
# show-hints = true
# update-frequency-ms = 100
# Negative disables periodic validation.
# validation-interval-ms = 3000
# End the session when the page is hidden instead of pausing.
# end-on-hidden = false
# How long saving a finished session may take.
# save-timeout-ms = 5000
# min-length = 3
# max-length = 10000

[messaging]
# Local HTTP control channel, e.g. "127.0.0.1:7878". Empty disables it.
# listen = ""
`

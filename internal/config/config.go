// Package config loads engine configuration from a YAML file via viper,
// filling in defaults for anything the file leaves out.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/Aidin1998/fixengine/internal/dict"
	"github.com/Aidin1998/fixengine/internal/session"
)

// Config is the engine's top-level configuration.
type Config struct {
	LogLevel string        `mapstructure:"log_level"`
	Session  SessionConfig `mapstructure:"session"`
}

// SessionConfig configures one FIX session.
type SessionConfig struct {
	BeginString        string        `mapstructure:"begin_string"`
	DefaultApplVerID   string        `mapstructure:"default_appl_ver_id"`
	SenderCompID       string        `mapstructure:"sender_comp_id"`
	TargetCompID       string        `mapstructure:"target_comp_id"`
	HeartBtInt         time.Duration `mapstructure:"heartbeat_interval"`
	LogonTimeout       time.Duration `mapstructure:"logon_timeout"`
	LogoutTimeout      time.Duration `mapstructure:"logout_timeout"`
	TestRequestGrace   time.Duration `mapstructure:"test_request_grace"`
	MaxResendAttempts  int           `mapstructure:"max_resend_attempts"`
	MaxMessageBytes    int           `mapstructure:"max_message_bytes"`
	ResetSeqNumOnLogon bool          `mapstructure:"reset_seq_num_on_logon"`
	Username           string        `mapstructure:"username"`
	Password           string        `mapstructure:"password"`
}

// Load reads the configuration file at path. An empty path searches the
// usual locations for fixengine.yaml; a missing file yields defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("fixengine")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/fixengine")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && path != "" {
			return nil, fmt.Errorf("reading configuration: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("session.begin_string", dict.BeginStringFIX44)
	v.SetDefault("session.heartbeat_interval", "30s")
	v.SetDefault("session.logon_timeout", "10s")
	v.SetDefault("session.logout_timeout", "10s")
	v.SetDefault("session.max_resend_attempts", 5)
	v.SetDefault("session.max_message_bytes", 1<<20)
}

// SessionConfig converts the file representation into the session layer's
// config, resolving BeginString and ApplVerID into a version.
func (c *Config) SessionConfig() (session.Config, error) {
	ver, ok := dict.VersionFromBeginString(c.Session.BeginString, dict.FIX50SP2)
	if !ok {
		return session.Config{}, fmt.Errorf("unknown begin_string %q", c.Session.BeginString)
	}
	if c.Session.BeginString == dict.BeginStringFIXT11 && c.Session.DefaultApplVerID != "" {
		ver, ok = dict.VersionFromApplVerID(c.Session.DefaultApplVerID)
		if !ok {
			return session.Config{}, fmt.Errorf("unknown default_appl_ver_id %q", c.Session.DefaultApplVerID)
		}
	}
	return session.Config{
		Version:            ver,
		SenderCompID:       c.Session.SenderCompID,
		TargetCompID:       c.Session.TargetCompID,
		HeartBtInt:         c.Session.HeartBtInt,
		LogonTimeout:       c.Session.LogonTimeout,
		LogoutTimeout:      c.Session.LogoutTimeout,
		TestRequestGrace:   c.Session.TestRequestGrace,
		MaxResendAttempts:  c.Session.MaxResendAttempts,
		MaxMessageBytes:    c.Session.MaxMessageBytes,
		ResetSeqNumOnLogon: c.Session.ResetSeqNumOnLogon,
		Username:           c.Session.Username,
		Password:           c.Session.Password,
	}, nil
}

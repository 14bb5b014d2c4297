package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	IRCAddr           string        `mapstructure:"irc_addr" yaml:"irc_addr"`
	ServerName        string        `mapstructure:"server_name" yaml:"server_name"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	SendQueueSize     int           `mapstructure:"send_queue_size" yaml:"send_queue_size"`
	MaxLineBytes      int           `mapstructure:"max_line_bytes" yaml:"max_line_bytes"`
	Channels          ChannelConfig `mapstructure:"channels" yaml:"channels"`
}

// ChannelConfig controls channel behaviour.
type ChannelConfig struct {
	DefaultTopicRestricted bool     `mapstructure:"default_topic_restricted" yaml:"default_topic_restricted"`
	SingleUseInvites       bool     `mapstructure:"single_use_invites" yaml:"single_use_invites"`
	FullModeSummary        bool     `mapstructure:"full_mode_summary" yaml:"full_mode_summary"`
	ServiceBots            []string `mapstructure:"service_bots" yaml:"service_bots"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		IRCAddr:           ":6667",
		ServerName:        "irc.local",
		LogLevel:          "info",
		DatabasePath:      "wirechat-irc.db",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		IdleTimeout:       5 * time.Minute,
		SendQueueSize:     256,
		MaxLineBytes:      512,
		Channels: ChannelConfig{
			DefaultTopicRestricted: true,
		},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.IRCAddr != "" {
		c.IRCAddr = other.IRCAddr
	}
	if other.ServerName != "" {
		c.ServerName = other.ServerName
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.IdleTimeout != 0 {
		c.IdleTimeout = other.IdleTimeout
	}
	if other.SendQueueSize != 0 {
		c.SendQueueSize = other.SendQueueSize
	}
	if other.MaxLineBytes != 0 {
		c.MaxLineBytes = other.MaxLineBytes
	}
}

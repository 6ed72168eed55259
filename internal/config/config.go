package config

import (
	"fmt"
	"time"
)

// Config defines the configuration for the ovpn-manager service.
type Config struct {
	Service ServiceConfig `mapstructure:"service"`
	Log     LogConfig     `mapstructure:"log"`
	API     APIConfig     `mapstructure:"api"`
	DB      DBConfig      `mapstructure:"db"`
	OpenVPN OpenVPNConfig `mapstructure:"openvpn"`
	Network NetworkConfig `mapstructure:"network"`
	Monitor MonitorConfig `mapstructure:"monitor"`
}

// ServiceConfig defines service-level configuration options.
type ServiceConfig struct {
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LogConfig defines the logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// APIConfig defines the API server configuration.
type APIConfig struct {
	ListenAddr  string   `mapstructure:"listen_addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// DBConfig defines the database configuration.
type DBConfig struct {
	Path            string `mapstructure:"path"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // seconds
}

// OpenVPNConfig defines paths and tool locations for managed instances.
type OpenVPNConfig struct {
	// BaseDir is the root under which per-instance directories live.
	BaseDir string `mapstructure:"base_dir"`
	// EasyRSABin is the easy-rsa executable used for all PKI operations.
	EasyRSABin string `mapstructure:"easyrsa_bin"`
	// OpenVPNBin is the openvpn executable, used for shared-secret keys.
	OpenVPNBin string `mapstructure:"openvpn_bin"`
	// ServiceTemplate is the systemd unit template instantiated per
	// instance, e.g. "openvpn-server@%s".
	ServiceTemplate string `mapstructure:"service_template"`
	// Packages are the system packages installed during provisioning.
	Packages []string `mapstructure:"packages"`
}

// NetworkConfig defines firewall and forwarding persistence locations.
type NetworkConfig struct {
	// RulesFile is where the full iptables ruleset is serialized.
	RulesFile string `mapstructure:"rules_file"`
	// SysctlFile is the drop-in that persists the forwarding flag.
	SysctlFile string `mapstructure:"sysctl_file"`
}

// MonitorConfig defines the connection monitor configuration.
type MonitorConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// Validate checks the configuration for obvious misconfiguration.
func (c *Config) Validate() error {
	if c.DB.Path == "" {
		return fmt.Errorf("db.path must not be empty")
	}
	if c.OpenVPN.BaseDir == "" {
		return fmt.Errorf("openvpn.base_dir must not be empty")
	}
	if c.OpenVPN.ServiceTemplate == "" {
		return fmt.Errorf("openvpn.service_template must not be empty")
	}
	if c.API.ListenAddr == "" {
		return fmt.Errorf("api.listen_addr must not be empty")
	}
	if c.Monitor.Enabled && c.Monitor.PollInterval <= 0 {
		return fmt.Errorf("monitor.poll_interval must be positive when the monitor is enabled")
	}

	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}

	switch c.Log.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("log.format %q is not one of json, text", c.Log.Format)
	}

	return nil
}

// ServiceUnit returns the systemd unit name for an instance.
func (c *OpenVPNConfig) ServiceUnit(instance string) string {
	return fmt.Sprintf(c.ServiceTemplate, instance)
}

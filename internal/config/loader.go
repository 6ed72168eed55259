package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading from YAML files and environment
// variables.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		v: viper.New(),
	}
}

// Load loads configuration from files and environment variables. A YAML
// file is optional; environment variables override file values.
func (l *Loader) Load() (*Config, error) {
	l.v.SetConfigName("config")
	l.v.SetConfigType("yaml")

	// Search paths in order of priority.
	l.v.AddConfigPath("/etc/ovpn-manager")
	l.v.AddConfigPath("$HOME/.ovpn-manager")
	l.v.AddConfigPath(".")

	l.v.SetEnvPrefix("OVPN_MANAGER")
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		// Missing config file is fine, defaults and ENV apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func (l *Loader) setDefaults() {
	l.v.SetDefault("service.shutdown_timeout", "30s")

	l.v.SetDefault("log.level", "info")
	l.v.SetDefault("log.format", "json")

	l.v.SetDefault("api.listen_addr", ":8085")

	l.v.SetDefault("db.path", "/var/lib/ovpn-manager/ovpn-manager.db")
	l.v.SetDefault("db.max_open_conns", 25)
	l.v.SetDefault("db.max_idle_conns", 5)
	l.v.SetDefault("db.conn_max_lifetime", 300)

	l.v.SetDefault("openvpn.base_dir", "/etc/openvpn/instances")
	l.v.SetDefault("openvpn.easyrsa_bin", "/usr/share/easy-rsa/easyrsa")
	l.v.SetDefault("openvpn.openvpn_bin", "openvpn")
	l.v.SetDefault("openvpn.service_template", "openvpn-server@%s")
	l.v.SetDefault("openvpn.packages", []string{"openvpn", "easy-rsa", "iptables-persistent"})

	l.v.SetDefault("network.rules_file", "/etc/iptables/rules.v4")
	l.v.SetDefault("network.sysctl_file", "/etc/sysctl.d/99-ovpn-manager.conf")

	l.v.SetDefault("monitor.enabled", true)
	l.v.SetDefault("monitor.poll_interval", "30s")
}

// LoadWithPath loads configuration from a specific file path.
func LoadWithPath(configPath string) (*Config, error) {
	loader := NewLoader()
	loader.v.SetConfigFile(configPath)

	loader.v.SetEnvPrefix("OVPN_MANAGER")
	loader.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	loader.v.AutomaticEnv()

	loader.setDefaults()

	if err := loader.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := loader.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

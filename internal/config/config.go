// Package config loads the client configuration and fixes the conf-directory
// layout shared by the vault and the registry.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

const (
	// ClientConfigFileName is the optional YAML file inside the conf dir.
	ClientConfigFileName = "conf_client.yml"

	gatewayConnectionsFileName = "gateway_connections.json"
)

// ClientConfig is the subset of the client configuration this backbone
// consumes.
type ClientConfig struct {
	ConfDir               string        `mapstructure:"conf_dir"`
	LogLevel              string        `mapstructure:"log_level"`
	PaperTradeExchanges   []string      `mapstructure:"paper_trade_exchanges"`
	SchedulerCallInterval time.Duration `mapstructure:"scheduler_call_interval"`
	DecryptBatchTimeout   time.Duration `mapstructure:"decrypt_batch_timeout"`
}

// GatewayConnectionsPath is the on-chain connection spec file.
func (c *ClientConfig) GatewayConnectionsPath() string {
	return filepath.Join(c.ConfDir, gatewayConnectionsFileName)
}

// Load reads the client config from <confDir>/conf_client.yml; a missing
// file yields the defaults.
func Load(confDir string) (*ClientConfig, error) {
	v := viper.New()
	v.SetDefault("conf_dir", confDir)
	v.SetDefault("log_level", "info")
	v.SetDefault("paper_trade_exchanges", []string{"binance", "kucoin", "gate_io", "ascend_ex"})
	v.SetDefault("scheduler_call_interval", 10*time.Millisecond)
	v.SetDefault("decrypt_batch_timeout", 30*time.Second)

	path := filepath.Join(confDir, ClientConfigFileName)
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading client config: %w", err)
		}
	}

	var cfg ClientConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing client config: %w", err)
	}
	return &cfg, nil
}

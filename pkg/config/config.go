package config

// Package config provides a reusable loader for ssichain policy files and
// environment variables. It is versioned so that applications can depend
// on a stable API contract.
//
// Version: v0.1.0

import (
	"fmt"

	"github.com/spf13/viper"

	"ssichain/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config represents the unified policy configuration for an ssichain node.
// It mirrors the structure of the YAML files Load reads (default.yaml plus an
// optional <env>.yaml, from cmd/config or config).
type Config struct {
	Coeus struct {
		// GracePeriodBlocks is the number of blocks after expiration during
		// which a domain cannot be re-registered. Defaults to core.DefaultGracePeriod
		// when unset.
		GracePeriodBlocks uint32 `mapstructure:"grace_period_blocks" json:"grace_period_blocks"`
		// MaxSubtreeDepth bounds registration depth when a subtree policy does
		// not declare its own limit.
		MaxSubtreeDepth int `mapstructure:"max_subtree_depth" json:"max_subtree_depth"`
	} `mapstructure:"coeus" json:"coeus"`

	Morpheus struct {
		// MinKeyOperationHeight is the lowest block height at which AddKey /
		// RevokeKey operations are accepted (height <= 1 is always rejected).
		MinKeyOperationHeight uint32 `mapstructure:"min_key_operation_height" json:"min_key_operation_height"`
	} `mapstructure:"morpheus" json:"morpheus"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and returned.
//
// The function uses the provided environment name to merge additional config
// files. If env is empty, only the default configuration is loaded.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.AutomaticEnv() // picks up overrides from environment variables

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the SSI_ENV environment variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("SSI_ENV", ""))
}

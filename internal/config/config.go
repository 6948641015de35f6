// Package config loads service configuration. Values come from three layers,
// later layers winning: the defaults already set on the struct, the YAML file,
// and QUIZDASH_-prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const envPrefix = "QUIZDASH"

// Load reads configuration into config, which must be a pointer to a struct.
// An empty file path skips the file layer; a missing file is an error.
func Load(file string, config any) error {
	v := viper.New()

	// Seed viper with the struct's current values so they act as defaults.
	m := make(map[string]any)
	if err := mapstructure.Decode(config, &m); err != nil {
		return fmt.Errorf("mapstructure: %v", err)
	}
	if err := v.MergeConfigMap(m); err != nil {
		return fmt.Errorf("merge config map: %v", err)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		if _, err := os.Stat(file); err != nil {
			return fmt.Errorf("config file %s: %v", file, err)
		}
		v.SetConfigFile(file)
		if err := v.MergeInConfig(); err != nil {
			return fmt.Errorf("read config from file %s: %v", file, err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("unmarshal config: %v", err)
	}

	return nil
}

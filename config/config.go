package config

import (
	configUtil "github.com/fox-one/pkg/config"

	"lever/core"
)

// Load load config file. Environment variables prefixed LEVER_ override file
// values.
func Load(configFile string, config *core.Config) error {
	configUtil.AutomaticLoadEnv("LEVER")
	if err := configUtil.LoadYaml(configFile, config); err != nil {
		return err
	}

	defaults(config)
	return nil
}

func defaults(cfg *core.Config) {
	if cfg.App.Port == 0 {
		cfg.App.Port = 8080
	}
	if cfg.Ledger.MaxNumAssets == 0 {
		cfg.Ledger.MaxNumAssets = 12
	}
	if cfg.Ledger.BoosterDecimals == 0 {
		cfg.Ledger.BoosterDecimals = 18
	}
}

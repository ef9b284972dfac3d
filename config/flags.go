package config

import (
	"flag"
)

// Get parses command-line flags and loads the yaml config. Flag overrides
// win over yaml values so a paper run never needs a config edit.
func Get() (*Config, error) {
	path := flag.String("config", "config.yaml", "path to yaml config")
	addr := flag.String("addr", "", "override server listen address")
	platform := flag.String("platform", "", "override venue platform: paper, binance, bybit, hyperliquid")
	flag.Parse()

	cfg, err := Load(*path)
	if err != nil {
		return nil, err
	}

	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *platform != "" {
		cfg.Venue.Platform = *platform
		if err := cfg.validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

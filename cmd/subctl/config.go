package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/roslink/internal/config"
)

// subctl config.toml key mapping onto node runtime settings.
type fileConfig struct {
	Name           string       `toml:"name"`
	Anonymous      bool         `toml:"anonymous"`
	MasterURI      string       `toml:"master_uri"`
	Addr           string       `toml:"addr"`
	AdvertiseURI   string       `toml:"advertise_uri"`
	CorsOrigins    []string     `toml:"cors_origins"`
	SpinIntervalMS int          `toml:"spin_interval_ms"`
	Topics         []topicEntry `toml:"topics"`
}

type topicEntry struct {
	Name     string `toml:"name"`
	Type     string `toml:"type"`
	MD5Sum   string `toml:"md5sum"`
	Latching bool   `toml:"latching"`
}

// subctl loader for TOML config with default overlay.
func loadNodeConfig(path string) (config.NodeConfig, error) {
	cfg := config.DefaultNodeConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return config.NodeConfig{}, fmt.Errorf("load node config: %w", err)
	}

	if meta.IsDefined("name") {
		cfg.Name = strings.TrimSpace(raw.Name)
	}
	if meta.IsDefined("anonymous") {
		cfg.Anonymous = raw.Anonymous
	}
	if meta.IsDefined("master_uri") {
		cfg.MasterURI = strings.TrimSpace(raw.MasterURI)
	}
	if meta.IsDefined("addr") {
		cfg.Addr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("advertise_uri") {
		cfg.AdvertiseURI = strings.TrimSpace(raw.AdvertiseURI)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = raw.CorsOrigins
	}
	if meta.IsDefined("spin_interval_ms") {
		cfg.SpinIntervalMS = raw.SpinIntervalMS
	}
	for _, entry := range raw.Topics {
		cfg.Topics = append(cfg.Topics, config.TopicConfig{
			Name:     strings.TrimSpace(entry.Name),
			Type:     strings.TrimSpace(entry.Type),
			MD5Sum:   strings.TrimSpace(entry.MD5Sum),
			Latching: entry.Latching,
		})
	}

	if err := config.ValidateNodeConfig(cfg); err != nil {
		return config.NodeConfig{}, err
	}
	return cfg, nil
}

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

type NodeConfig struct {
	Name           string        `toml:"name"`
	Anonymous      bool          `toml:"anonymous"`
	MasterURI      string        `toml:"master_uri"`
	Addr           string        `toml:"addr"`
	AdvertiseURI   string        `toml:"advertise_uri"`
	CorsOrigins    []string      `toml:"cors_origins"`
	SpinIntervalMS int           `toml:"spin_interval_ms"`
	Topics         []TopicConfig `toml:"topics"`
}

type TopicConfig struct {
	Name     string `toml:"name"`
	Type     string `toml:"type"`
	MD5Sum   string `toml:"md5sum"`
	Latching bool   `toml:"latching"`
}

func DefaultNodeConfig() NodeConfig {
	return NodeConfig{
		Name:           "roslink",
		MasterURI:      "http://127.0.0.1:11311",
		Addr:           ":9600",
		SpinIntervalMS: 10,
	}
}

func LoadNodeConfig(path string) (NodeConfig, error) {
	cfg := DefaultNodeConfig()
	if err := loadToml(path, &cfg); err != nil {
		return NodeConfig{}, err
	}
	if err := ValidateNodeConfig(cfg); err != nil {
		return NodeConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateNodeConfig(cfg NodeConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("node config missing name")
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		return fmt.Errorf("node config missing addr")
	}
	if !strings.HasPrefix(strings.TrimSpace(cfg.MasterURI), "http://") &&
		!strings.HasPrefix(strings.TrimSpace(cfg.MasterURI), "https://") {
		return fmt.Errorf("node config master_uri must be an http(s) endpoint")
	}
	if cfg.SpinIntervalMS <= 0 {
		return fmt.Errorf("node config spin_interval_ms must be positive")
	}
	for i, topicCfg := range cfg.Topics {
		if err := ValidateTopicEntry(topicCfg); err != nil {
			return fmt.Errorf("topic[%d] invalid: %w", i, err)
		}
	}
	return nil
}

func ValidateTopicEntry(cfg TopicConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if strings.TrimSpace(cfg.Type) == "" {
		return fmt.Errorf("type is required")
	}
	if strings.TrimSpace(cfg.MD5Sum) == "" {
		return fmt.Errorf("md5sum is required")
	}
	return nil
}

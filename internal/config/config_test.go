package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danmuck/roslink/internal/testutil/testlog"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "node.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadNodeConfigAppliesDefaults(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `
name = "listener"
`)
	cfg, err := LoadNodeConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Name != "listener" {
		t.Fatalf("name got=%q", cfg.Name)
	}
	if cfg.MasterURI != "http://127.0.0.1:11311" {
		t.Fatalf("master default got=%q", cfg.MasterURI)
	}
	if cfg.Addr != ":9600" {
		t.Fatalf("addr default got=%q", cfg.Addr)
	}
	if cfg.SpinIntervalMS != 10 {
		t.Fatalf("spin interval default got=%d", cfg.SpinIntervalMS)
	}
}

func TestLoadNodeConfigFull(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `
name = "listener"
anonymous = true
master_uri = "http://10.0.0.1:11311"
addr = ":9700"
advertise_uri = "http://10.0.0.9:9700"
spin_interval_ms = 25

[[topics]]
name = "/chatter"
type = "std_msgs/String"
md5sum = "992ce8a1687cec8c8bd883ec73ca41d1"
latching = true
`)
	cfg, err := LoadNodeConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Anonymous || cfg.Addr != ":9700" || cfg.SpinIntervalMS != 25 {
		t.Fatalf("cfg got=%+v", cfg)
	}
	if len(cfg.Topics) != 1 {
		t.Fatalf("topics got=%d", len(cfg.Topics))
	}
	topic := cfg.Topics[0]
	if topic.Name != "/chatter" || topic.Type != "std_msgs/String" || !topic.Latching {
		t.Fatalf("topic got=%+v", topic)
	}
}

func TestLoadNodeConfigMissingFile(t *testing.T) {
	testlog.Start(t)
	if _, err := LoadNodeConfig(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatalf("missing file should fail")
	}
}

func TestValidateNodeConfig(t *testing.T) {
	testlog.Start(t)
	base := DefaultNodeConfig()

	cfg := base
	cfg.Name = " "
	if err := ValidateNodeConfig(cfg); err == nil || !strings.Contains(err.Error(), "name") {
		t.Fatalf("blank name: got %v", err)
	}

	cfg = base
	cfg.MasterURI = "tcp://10.0.0.1:11311"
	if err := ValidateNodeConfig(cfg); err == nil || !strings.Contains(err.Error(), "master_uri") {
		t.Fatalf("bad master scheme: got %v", err)
	}

	cfg = base
	cfg.SpinIntervalMS = 0
	if err := ValidateNodeConfig(cfg); err == nil || !strings.Contains(err.Error(), "spin_interval_ms") {
		t.Fatalf("zero spin interval: got %v", err)
	}

	cfg = base
	cfg.Topics = []TopicConfig{{Name: "/chatter", Type: "std_msgs/String"}}
	if err := ValidateNodeConfig(cfg); err == nil || !strings.Contains(err.Error(), "md5sum") {
		t.Fatalf("missing digest: got %v", err)
	}

	if err := ValidateNodeConfig(base); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

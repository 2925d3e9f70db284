package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/roslink/internal/testutil/testlog"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadNodeConfigKeepsDefaultsForAbsentKeys(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `
name = "listener"
`)
	cfg, err := loadNodeConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Name != "listener" {
		t.Fatalf("name got=%q", cfg.Name)
	}
	if cfg.MasterURI != "http://127.0.0.1:11311" {
		t.Fatalf("master default lost: %q", cfg.MasterURI)
	}
	if cfg.Addr != ":9600" {
		t.Fatalf("addr default lost: %q", cfg.Addr)
	}
	if cfg.SpinIntervalMS != 10 {
		t.Fatalf("spin interval default lost: %d", cfg.SpinIntervalMS)
	}
	if cfg.Anonymous {
		t.Fatalf("anonymous default lost")
	}
}

func TestLoadNodeConfigAppliesOverrides(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `
name = "  listener  "
anonymous = true
master_uri = "http://10.0.0.1:11311"
addr = ":9700"
advertise_uri = "http://10.0.0.9:9700"
cors_origins = ["http://dashboard.local"]
spin_interval_ms = 25

[[topics]]
name = "/chatter"
type = "std_msgs/String"
md5sum = "992ce8a1687cec8c8bd883ec73ca41d1"
latching = true

[[topics]]
name = "/odom"
type = "nav_msgs/Odometry"
md5sum = "cd5e73d190d741a2f92e81eda573aca7"
`)
	cfg, err := loadNodeConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Name != "listener" {
		t.Fatalf("name not trimmed: %q", cfg.Name)
	}
	if !cfg.Anonymous || cfg.Addr != ":9700" || cfg.SpinIntervalMS != 25 {
		t.Fatalf("cfg got=%+v", cfg)
	}
	if len(cfg.CorsOrigins) != 1 || cfg.CorsOrigins[0] != "http://dashboard.local" {
		t.Fatalf("cors got=%v", cfg.CorsOrigins)
	}
	if len(cfg.Topics) != 2 {
		t.Fatalf("topics got=%d", len(cfg.Topics))
	}
	if cfg.Topics[0].Name != "/chatter" || !cfg.Topics[0].Latching {
		t.Fatalf("topic0 got=%+v", cfg.Topics[0])
	}
	if cfg.Topics[1].Name != "/odom" || cfg.Topics[1].Latching {
		t.Fatalf("topic1 got=%+v", cfg.Topics[1])
	}
}

func TestLoadNodeConfigRejectsInvalid(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `
name = "listener"
master_uri = "tcp://10.0.0.1:11311"
`)
	if _, err := loadNodeConfig(path); err == nil {
		t.Fatalf("bad master scheme should fail validation")
	}

	path = writeConfig(t, `
name = "listener"

[[topics]]
name = "/chatter"
type = "std_msgs/String"
`)
	if _, err := loadNodeConfig(path); err == nil {
		t.Fatalf("topic without md5sum should fail validation")
	}

	if _, err := loadNodeConfig(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatalf("missing file should fail")
	}
}

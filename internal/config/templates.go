package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "node":
		return nodeTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const nodeTemplate = `name = "listener"
anonymous = false
master_uri = "http://127.0.0.1:11311"
addr = ":9600"
advertise_uri = "http://127.0.0.1:9600"
cors_origins = ["http://localhost:3000"]
spin_interval_ms = 10

[[topics]]
name = "/chatter"
type = "std_msgs/String"
md5sum = "992ce8a1687cec8c8bd883ec73ca41d1"
latching = false
`

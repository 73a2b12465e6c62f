package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "agent":
		return agentTemplate, nil
	case "controller":
		return controllerTemplate, nil
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

const agentTemplate = `controller_address = "127.0.0.1:4444"
auth_token = "deadbeef"
strict_unknown_commands = false

connect_timeout = "5s"
handshake_timeout = "5s"
idle_timeout = "0s"
write_timeout = "15s"
cancel_poll_wait = "1ms"
tail_interval = "100ms"

allow_exec = false
reconnect = false
max_connect_attempts = 0
backoff_initial = "250ms"
backoff_max = "5s"

admin_listen_addr = ""
admin_cors_origins = []
`

const controllerTemplate = `listen = "0.0.0.0:4444"
auth_tokens = ["deadbeef"]
oncon = ""
rc = ""
downloads_dir = "./downloads"
`

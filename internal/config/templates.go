package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "listen", "server":
		return listenTemplate, nil
	case "dial", "client":
		return dialTemplate, nil
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

const listenTemplate = `name = "rakpeer"
listen = "0.0.0.0:19132"
admin_addr = "127.0.0.1:7010"
admin_token = ""
cors_origins = ["http://localhost:3000"]
max_peers = 64
deny = []
mtus = [1492, 1200, 576]
retries = 4

[session]
resend_ms = 1000
update_ms = 50
ack_flush_ms = 3000
force_ack_flush = true
timeout_ms = 10000
max_pending_splits = 32
max_nack_attempts = 8
`

const dialTemplate = `name = "rakpeer-client"
listen = "0.0.0.0:0"
remote = "127.0.0.1:19132"
mtus = [1492, 1200, 576]
retries = 4

[session]
update_ms = 50
timeout_ms = 10000
`

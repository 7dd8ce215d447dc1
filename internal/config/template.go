package config

import (
	"errors"
	"os"
	"path/filepath"
)

// defaultTemplate is written on first run. It mirrors Default() with the
// fields an operator has to fill in called out.
const defaultTemplate = `# contestbot configuration
telegram:
  # BotFather token. Required.
  token: ""
  # Chats allowed to manage reminders. Empty allows no one.
  owner_ids: []

logging:
  level: info     # trace|debug|info|warn|error
  format: console # console|json
  console: true
  file:
    enabled: false
    path: contestbot.log

# Runtime state (contest cache) lives here.
data_dir: data

cache:
  driver: file # none|file|sqlite

# Cron expression for the background contest refresh. Empty disables it.
refresh:
  spec: "@hourly"

reminder:
  enabled: false
  hour: 8
  minute: 30
  subscribers: []
`

// WriteTemplate creates path with a starter config: commented YAML when the
// extension asks for it, rendered defaults otherwise. It refuses to
// overwrite an existing file.
func WriteTemplate(path string) error {
	if _, err := os.Stat(path); err == nil {
		return errors.New("config file already exists")
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	body := []byte(defaultTemplate)
	if !isYAMLPath(path) {
		b, err := encodeForPath(path, Default())
		if err != nil {
			return err
		}
		body = b
	}
	return os.WriteFile(path, body, 0o600)
}

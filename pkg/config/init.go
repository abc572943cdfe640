package config

import (
	"fmt"
	"os"
)

// InitConfig creates a starter configuration file at the default
// location ($XDG_CONFIG_HOME/offworker/config.yaml) and returns its
// path. An existing file is left alone unless force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath creates a starter configuration file at the given
// path. An existing file is left alone unless force is set.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	return SaveConfig(GetDefaultConfig(), path)
}

package config

import (
	"fmt"
	"os"
)

// InitConfig writes a default configuration file at the default location and
// returns its path. Refuses to overwrite an existing file unless force is
// set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a default configuration file to the given path.
func InitConfigToPath(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
	}

	if err := SaveConfig(GetDefaultConfig(), path); err != nil {
		return fmt.Errorf("failed to write default config: %w", err)
	}
	return nil
}

package main

import (
	"fmt"
	"os"

	"github.com/4beshinji/wise-magpie/internal/config"
	"github.com/4beshinji/wise-magpie/internal/storage"
)

func resolveConfigDir() (string, error) {
	if configDirFlag != "" {
		return configDirFlag, nil
	}
	return config.Dir()
}

// loadConfigAndPaths resolves the config directory and loads config.toml,
// returning the standard file layout alongside it.
func loadConfigAndPaths() (config.Config, config.Paths, error) {
	dir, err := resolveConfigDir()
	if err != nil {
		return config.Config{}, config.Paths{}, fmt.Errorf("resolve config directory: %w", err)
	}
	paths := config.ResolvePaths(dir)

	if _, err := os.Stat(paths.ConfigFile); os.IsNotExist(err) {
		return config.Config{}, config.Paths{}, fmt.Errorf("no config at %s (run 'wise-magpie config init' first)", paths.ConfigFile)
	}

	cfg, err := config.Load(paths.ConfigFile)
	if err != nil {
		return config.Config{}, config.Paths{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, paths, nil
}

// openStore opens the task database named in paths, creating it and its
// schema on first use.
func openStore(paths config.Paths) (storage.Storage, error) {
	return storage.NewStorage(&storage.Config{Path: paths.DBFile})
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jeranaias/bookshelf-tui/internal/config"
)

const configUsage = "bookshelf config show|path|keys|get <key>|set <key> <value>"

// HandleConfig runs "bookshelf config ...". It never needs a session.
func HandleConfig(env *Env) error {
	p := NewArgParser(env.Args.Raw)

	switch p.Subcommand() {
	case "", "show":
		if env.Args.JSON {
			return NewJSONResponse("config show", env.Config).Write(env.Out)
		}
		fmt.Fprintln(env.Out, env.Config.String())
		return nil
	case "path":
		path, err := configPath(env)
		if err != nil {
			return &ConfigError{Err: err}
		}
		return env.emit("config path", map[string]string{"path": path}, func(w io.Writer) {
			fmt.Fprintln(w, path)
		})
	case "keys":
		keys := config.GetAllKeys()
		return env.emit("config keys", keys, func(w io.Writer) {
			fmt.Fprintln(w, strings.Join(keys, "\n"))
		})
	case "get":
		return configGet(env, p)
	case "set":
		return configSet(env, p)
	}
	return &UsageError{Usage: configUsage, Message: fmt.Sprintf("unknown config subcommand %q", p.Subcommand())}
}

// configPath is --config, or the default TOML file.
func configPath(env *Env) (string, error) {
	if env.Args.ConfigPath != "" {
		return env.Args.ConfigPath, nil
	}
	return config.ConfigPathTOML()
}

func configGet(env *Env, p *ArgParser) error {
	key := p.Positional(1)
	if key == "" {
		return ErrMissingArgument("key", "bookshelf config get <key>")
	}
	value, err := env.Config.Get(key)
	if err != nil {
		return &UsageError{Usage: "bookshelf config keys", Message: err.Error()}
	}
	return env.emit("config get", map[string]interface{}{"key": key, "value": value}, func(w io.Writer) {
		fmt.Fprintln(w, value)
	})
}

// configSet edits the file on disk rather than the loaded config, so
// environment overrides and --server are not written back.
func configSet(env *Env, p *ArgParser) error {
	const usage = "bookshelf config set <key> <value>"
	key := p.Positional(1)
	if key == "" {
		return ErrMissingArgument("key", usage)
	}
	if p.PositionalCount() < 3 {
		return ErrMissingArgument("value", usage)
	}
	value := JoinPositionalArgs(p, 2)

	path, err := configPath(env)
	if err != nil {
		return &ConfigError{Err: err}
	}
	if strings.HasSuffix(path, ".json") {
		return &UsageError{Message: "config set writes TOML; point --config at a .toml file"}
	}
	cfg, err := loadConfigFile(env, path)
	if err != nil {
		return &ConfigError{Err: err}
	}

	if err := cfg.Set(key, value); err != nil {
		return &UsageError{Usage: usage, Message: err.Error()}
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return &ConfigError{Err: err}
	}

	if env.Args.ConfigPath == "" {
		if err := config.EnsureConfigDir(); err != nil {
			return &ConfigError{Err: err}
		}
	}
	if err := config.SaveTOML(cfg, path); err != nil {
		return &ConfigError{Err: err}
	}

	stored, _ := cfg.Get(key)
	return env.emit("config set", map[string]interface{}{"key": key, "value": stored, "path": path}, func(io.Writer) {
		env.done("Set %s = %v in %s", key, stored, path)
	})
}

// loadConfigFile reads path without environment overrides. A default
// location with only a JSON file is read from JSON and saved as TOML.
func loadConfigFile(env *Env, path string) (*config.Config, error) {
	cfg := config.Default()
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return cfg, config.LoadTOML(cfg, path)
	case !errors.Is(err, os.ErrNotExist):
		return nil, err
	case env.Args.ConfigPath != "":
		return cfg, nil
	}

	jsonPath, err := config.ConfigPathJSON()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(jsonPath); err == nil {
		return cfg, config.LoadJSON(cfg, jsonPath)
	}
	return cfg, nil
}

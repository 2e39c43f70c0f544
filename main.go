// bookshelf - a terminal client for chatting with your document collections.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/bookshelf-tui/internal/app"
	"github.com/jeranaias/bookshelf-tui/internal/cli"
	"github.com/jeranaias/bookshelf-tui/internal/config"
	"github.com/jeranaias/bookshelf-tui/internal/logging"
	"github.com/jeranaias/bookshelf-tui/internal/ui/styles"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	// Sync version info with cli package
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	cmd, args := cli.Parse(os.Args[1:])
	if cmd == cli.CmdTUI {
		os.Exit(runTUI(args))
	}
	os.Exit(cli.Run(cmd, args))
}

// runTUI starts the full-screen interface and returns the exit code.
func runTUI(args cli.Args) int {
	cfg, err := cli.LoadConfig(args)
	if err != nil {
		cli.DisplayError(os.Stdout, os.Stderr, "tui", err, false)
		return cli.GetExitCode(err)
	}
	if err := cli.SetupLogging(cfg, args.Verbose); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: logging disabled: %v\n", err)
	}
	defer logging.Close()

	a, err := app.New(app.Options{Config: cfg, UserAgent: cli.UserAgent()})
	if err != nil {
		err = &cli.ConfigError{Err: err}
		cli.DisplayError(os.Stdout, os.Stderr, "tui", err, false)
		return cli.GetExitCode(err)
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewModel(ctx, a, styles.NewTheme(cfg.UI.Theme))
	p := tea.NewProgram(
		m,
		tea.WithAltScreen(),       // Use alternate screen buffer
		tea.WithMouseCellMotion(), // Enable mouse support
	)

	// Hot reload: edits to the config file reach the running UI.
	watchPath := args.ConfigPath
	if watchPath == "" {
		watchPath, err = config.ConfigPathTOML()
	}
	if err == nil && config.EnsureConfigDir() == nil {
		err = config.Watch(ctx, watchPath, 0, func(c *config.Config, err error) {
			p.Send(configChangedMsg{cfg: c, err: err})
		})
	}
	if err != nil {
		logging.L().Warn("config hot reload disabled", "error", err)
	}

	_, runErr := p.Run()
	cancel()

	// Keep whatever was typed but not sent.
	flushCtx, flushCancel := context.WithTimeout(context.Background(), 2*time.Second)
	a.Chats.FlushDraft(flushCtx)
	flushCancel()

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Error running bookshelf: %v\n", runErr)
		logging.L().Error("tui exited with error", "error", runErr)
		return cli.ExitGeneralError
	}
	return cli.ExitSuccess
}

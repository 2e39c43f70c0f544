// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the bookshelf subcommands.
//
// Every command runs against the same service graph as the TUI (see
// internal/app). A remembered session is restored before any command that
// needs one; `bookshelf login --remember` creates it.
//
// # Key Types
//
//   - Command: the parsed top-level command
//   - Args: global flags plus the raw command arguments
//   - ArgParser: per-command flag and positional parsing
//   - Env: the context, config, app and output streams a command runs with
//   - JSONResponse: the envelope written in --json mode
//
// # Usage
//
//	cmd, args := cli.Parse(os.Args[1:])
//	if cmd == cli.CmdTUI {
//		runTUI(args)
//		return
//	}
//	os.Exit(cli.Run(cmd, args))
package cli

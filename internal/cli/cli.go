// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"runtime"
	"strings"
)

// Version information, overridden by main at startup.
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// UserAgent is sent with every API request.
func UserAgent() string {
	return "bookshelf/" + Version
}

// Command is the top-level command to execute.
type Command int

const (
	CmdTUI Command = iota
	CmdLogin
	CmdRegister
	CmdLogout
	CmdWhoami
	CmdKB
	CmdDocs
	CmdChat
	CmdUsage
	CmdConfig
	CmdVersion
	CmdHelp
	CmdUnknown
)

var commandNames = map[Command]string{
	CmdTUI:      "tui",
	CmdLogin:    "login",
	CmdRegister: "register",
	CmdLogout:   "logout",
	CmdWhoami:   "whoami",
	CmdKB:       "kb",
	CmdDocs:     "docs",
	CmdChat:     "chat",
	CmdUsage:    "usage",
	CmdConfig:   "config",
	CmdVersion:  "version",
	CmdHelp:     "help",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return "unknown"
}

// Args holds the global flags and the command's own arguments.
type Args struct {
	// Global flags
	JSON    bool
	Verbose bool
	Quiet   bool
	// ConfigPath replaces the default config file.
	ConfigPath string
	// Server overrides api.base_url for this run.
	Server string

	// Name is the command word as typed, kept for error messages.
	Name       string
	Subcommand string
	// Raw is everything after the command word, global flags removed.
	Raw []string
}

const usageText = `bookshelf - chat with your documents from the terminal

Usage:
  bookshelf                          Start the TUI (default)
  bookshelf login [email] [--remember]
                                     Sign in; --remember keeps the session for later commands
  bookshelf register [email]         Create an account and sign in
  bookshelf logout                   Sign out and forget the remembered session
  bookshelf whoami                   Show the signed-in account

Bookshelves:
  bookshelf kb list [--filter TEXT]
  bookshelf kb create <title>
  bookshelf kb rename <kb> <title>
  bookshelf kb delete <kb> [--yes]

Documents:
  bookshelf docs list <kb> [--filter TEXT]
  bookshelf docs upload <kb> <file>...
  bookshelf docs rename <kb> <doc> <name>
  bookshelf docs delete <kb> <doc>... [--yes]
  bookshelf docs enable <kb> <doc>... | --all
  bookshelf docs disable <kb> <doc>... | --all
  bookshelf docs download <kb> <doc> [--dir DIR]
  bookshelf docs parse <kb> <doc> [--wait]
  bookshelf docs status <kb> <doc>
  bookshelf docs show <kb> <doc> [--version N] [--original] [--lines N] [--plain]
  bookshelf docs versions <kb> <doc>

Chats:
  bookshelf chat list
  bookshelf chat create <title> --kb KB[,KB...] [--description TEXT]
  bookshelf chat delete <chat> [--yes]
  bookshelf chat history <chat> [--raw]
  bookshelf chat send <chat> <message>    ("-" reads the message from stdin)
  bookshelf chat repl [chat]
  bookshelf chat libraries <chat>

Other:
  bookshelf usage [--month YYYY-MM]
  bookshelf config show|path
  bookshelf config get <key>
  bookshelf config set <key> <value>
  bookshelf version
  bookshelf help

Global flags:
  --json             Machine-readable output
  --config PATH      Use a different config file
  --server URL       Override api.base_url
  -v, --verbose      Debug logging
  -q, --quiet        Only print errors

<kb>, <doc> and <chat> accept an id or an exact (case-insensitive) name.
`

// ShowHelp prints the usage text.
func ShowHelp(w io.Writer) {
	fmt.Fprint(w, usageText)
}

// ShowVersion prints version information.
func ShowVersion(w io.Writer, jsonMode bool) {
	if jsonMode {
		_ = NewJSONResponse("version", map[string]string{
			"version":    Version,
			"git_commit": GitCommit,
			"build_date": BuildDate,
			"go":         runtime.Version(),
		}).Write(w)
		return
	}
	fmt.Fprintf(w, "bookshelf %s\n", Version)
	fmt.Fprintf(w, "  commit: %s\n", GitCommit)
	fmt.Fprintf(w, "  built:  %s\n", BuildDate)
	fmt.Fprintf(w, "  go:     %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// =============================================================================
// PARSING
// =============================================================================

// Parse reads the command line (without the program name).
func Parse(argv []string) (Command, Args) {
	remaining, args := parseGlobalFlags(argv)
	if len(remaining) == 0 {
		return CmdTUI, args
	}

	args.Name = strings.ToLower(remaining[0])
	args.Raw = remaining[1:]
	if len(args.Raw) > 0 && !strings.HasPrefix(args.Raw[0], "-") {
		args.Subcommand = strings.ToLower(args.Raw[0])
	}

	switch args.Name {
	case "tui":
		return CmdTUI, args
	case "login", "signin":
		return CmdLogin, args
	case "register", "signup":
		return CmdRegister, args
	case "logout", "signout":
		return CmdLogout, args
	case "whoami":
		return CmdWhoami, args
	case "kb", "kbs", "shelf", "shelves":
		return CmdKB, args
	case "docs", "doc", "documents":
		return CmdDocs, args
	case "chat", "chats":
		return CmdChat, args
	case "usage":
		return CmdUsage, args
	case "config":
		return CmdConfig, args
	case "version", "--version":
		return CmdVersion, args
	case "help", "-h", "--help":
		return CmdHelp, args
	}
	return CmdUnknown, args
}

// parseGlobalFlags strips global flags from anywhere on the line.
func parseGlobalFlags(argv []string) ([]string, Args) {
	var args Args
	remaining := make([]string, 0, len(argv))

	for i := 0; i < len(argv); i++ {
		arg := argv[i]
		switch {
		case arg == "--":
			remaining = append(remaining, argv[i:]...)
			return remaining, args
		case arg == "--json":
			args.JSON = true
		case arg == "-v" || arg == "--verbose":
			args.Verbose = true
		case arg == "-q" || arg == "--quiet":
			args.Quiet = true
		case arg == "--config" || arg == "--server":
			if i+1 < len(argv) {
				i++
				if arg == "--config" {
					args.ConfigPath = argv[i]
				} else {
					args.Server = argv[i]
				}
			}
		case strings.HasPrefix(arg, "--config="):
			args.ConfigPath = strings.TrimPrefix(arg, "--config=")
		case strings.HasPrefix(arg, "--server="):
			args.Server = strings.TrimPrefix(arg, "--server=")
		default:
			remaining = append(remaining, arg)
		}
	}
	return remaining, args
}

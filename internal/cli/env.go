// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/jeranaias/bookshelf-tui/internal/app"
	"github.com/jeranaias/bookshelf-tui/internal/config"
	"github.com/jeranaias/bookshelf-tui/internal/logging"
	"github.com/jeranaias/bookshelf-tui/internal/model"
	"github.com/jeranaias/bookshelf-tui/internal/notify"
	"github.com/jeranaias/bookshelf-tui/internal/session"
	"github.com/jeranaias/bookshelf-tui/internal/util"
)

// =============================================================================
// ENVIRONMENT
// =============================================================================

// Env is everything a command runs with.
type Env struct {
	Ctx    context.Context
	Args   Args
	Config *config.Config
	App    *app.App

	Out    io.Writer
	ErrOut io.Writer
	In     io.Reader

	prompt *Prompter
}

// LoadConfig loads the configuration named by --config, or the default
// one, and applies --server.
func LoadConfig(args Args) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if args.ConfigPath != "" {
		config.LoadDotEnv()
		cfg, err = config.LoadFromPath(args.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if cfg == nil {
		return nil, &ConfigError{Err: err}
	}
	if err != nil {
		// Defaults were used; say so but carry on.
		fmt.Fprintf(os.Stderr, "%s %v (using defaults)\n", WarningStyle.Render("Warning:"), err)
	}
	if args.Server != "" {
		cfg.API.BaseURL = strings.TrimRight(args.Server, "/")
	}
	return cfg, nil
}

// SetupLogging opens the log file named in cfg. --verbose forces debug.
func SetupLogging(cfg *config.Config, verbose bool) error {
	path, err := config.DataPath(cfg.Log.File)
	if err != nil {
		return err
	}
	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	_, err = logging.Init(path, level)
	return err
}

// NewEnv wires an Env around an existing app. Output defaults to the
// process streams.
func NewEnv(ctx context.Context, args Args, a *app.App) *Env {
	e := &Env{
		Ctx:    ctx,
		Args:   args,
		Config: a.Config,
		App:    a,
		Out:    os.Stdout,
		ErrOut: os.Stderr,
		In:     os.Stdin,
	}
	return e
}

// Prompter returns the prompter over e.In, creating it on first use.
func (e *Env) Prompter() *Prompter {
	if e.prompt == nil {
		e.prompt = NewPrompter(e.In, e.ErrOut)
	}
	return e.prompt
}

// logNotifier records service notices. CLI commands report failures
// through their returned errors, so notices are only logged.
type logNotifier struct{}

func (logNotifier) Notify(n notify.Notice) {
	logging.L().Debug("notice", "level", n.Level, "title", n.Title, "message", n.Message)
}

// Run executes a non-TUI command and returns the process exit code.
func Run(cmd Command, args Args) int {
	switch cmd {
	case CmdHelp:
		ShowHelp(os.Stdout)
		return ExitSuccess
	case CmdVersion:
		ShowVersion(os.Stdout, args.JSON)
		return ExitSuccess
	case CmdUnknown:
		err := &UsageError{Message: fmt.Sprintf("unknown command %q (see 'bookshelf help')", args.Name)}
		DisplayError(os.Stdout, os.Stderr, args.Name, err, args.JSON)
		return GetExitCode(err)
	}

	cfg, err := LoadConfig(args)
	if err != nil {
		DisplayError(os.Stdout, os.Stderr, args.Name, err, args.JSON)
		return GetExitCode(err)
	}
	if err := SetupLogging(cfg, args.Verbose); err != nil {
		fmt.Fprintf(os.Stderr, "%s logging disabled: %v\n", WarningStyle.Render("Warning:"), err)
	}
	defer logging.Close()

	a, err := app.New(app.Options{
		Config:    cfg,
		Notifier:  logNotifier{},
		UserAgent: UserAgent(),
	})
	if err != nil {
		err = &ConfigError{Err: err}
		DisplayError(os.Stdout, os.Stderr, args.Name, err, args.JSON)
		return GetExitCode(err)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	env := NewEnv(ctx, args, a)
	if err := Execute(env, cmd); err != nil {
		DisplayError(env.Out, env.ErrOut, commandLabel(args), err, args.JSON)
		return GetExitCode(err)
	}
	return ExitSuccess
}

// Execute dispatches cmd.
func Execute(env *Env, cmd Command) error {
	logging.L().Debug("running command", "command", cmd.String(), "subcommand", env.Args.Subcommand)
	switch cmd {
	case CmdLogin:
		return HandleLogin(env)
	case CmdRegister:
		return HandleRegister(env)
	case CmdLogout:
		return HandleLogout(env)
	case CmdWhoami:
		return HandleWhoami(env)
	case CmdKB:
		return HandleKB(env)
	case CmdDocs:
		return HandleDocs(env)
	case CmdChat:
		return HandleChat(env)
	case CmdUsage:
		return HandleUsage(env)
	case CmdConfig:
		return HandleConfig(env)
	case CmdHelp:
		ShowHelp(env.Out)
		return nil
	case CmdVersion:
		ShowVersion(env.Out, env.Args.JSON)
		return nil
	}
	return &UsageError{Message: fmt.Sprintf("unknown command %q (see 'bookshelf help')", env.Args.Name)}
}

func commandLabel(args Args) string {
	if args.Subcommand == "" {
		return args.Name
	}
	return args.Name + " " + args.Subcommand
}

// =============================================================================
// SESSION
// =============================================================================

// requireSession restores the remembered session and confirms it with the
// backend.
func (e *Env) requireSession() error {
	if err := e.App.Session.Init(e.Ctx); err != nil {
		return err
	}
	if e.App.Session.State() != session.StateAuthenticated {
		return ErrNotSignedIn
	}
	return nil
}

// =============================================================================
// OUTPUT
// =============================================================================

// emit writes data as a JSON envelope in --json mode, else calls human.
func (e *Env) emit(command string, data interface{}, human func(w io.Writer)) error {
	if e.Args.JSON {
		return NewJSONResponse(command, data).Write(e.Out)
	}
	human(e.Out)
	return nil
}

// done prints a one-line success message unless --quiet or --json.
func (e *Env) done(format string, a ...interface{}) {
	if e.Args.Quiet || e.Args.JSON {
		return
	}
	fmt.Fprintf(e.Out, "%s %s\n", SuccessStyle.Render("✓"), fmt.Sprintf(format, a...))
}

// =============================================================================
// REFERENCE RESOLUTION
// =============================================================================

// matchRef picks the item whose id equals ref, else the items whose name
// equals ref ignoring case.
func matchRef[T any](resource, ref string, items []T, id func(T) model.ID, name func(T) string) (T, error) {
	var zero T
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return zero, &UsageError{Message: "empty " + resource + " reference"}
	}
	for _, it := range items {
		if id(it).String() == ref {
			return it, nil
		}
	}
	var found []T
	want := util.Fold(ref)
	for _, it := range items {
		if util.Fold(name(it)) == want {
			found = append(found, it)
		}
	}
	switch len(found) {
	case 0:
		return zero, &NotFoundError{Resource: resource, Ref: ref}
	case 1:
		return found[0], nil
	}
	return zero, &AmbiguousError{Resource: resource, Ref: ref, Count: len(found)}
}

// knowledgeBase resolves a bookshelf by id or title.
func (e *Env) knowledgeBase(ref string) (model.KnowledgeBase, error) {
	kbs := e.App.KnowledgeBases
	if err := kbs.List(e.Ctx); err != nil {
		return model.KnowledgeBase{}, err
	}
	return matchRef("bookshelf", ref, kbs.Items(),
		func(kb model.KnowledgeBase) model.ID { return kb.ID },
		func(kb model.KnowledgeBase) string { return kb.Title })
}

// openShelf resolves ref and loads its documents into the collection.
func (e *Env) openShelf(ref string) (model.KnowledgeBase, error) {
	kb, err := e.knowledgeBase(ref)
	if err != nil {
		return kb, err
	}
	e.App.Documents.Use(kb.ID)
	if err := e.App.Documents.List(e.Ctx); err != nil {
		return kb, err
	}
	return kb, nil
}

// document resolves a document of the open bookshelf by id or name.
func (e *Env) document(ref string) (model.Document, error) {
	return matchRef("document", ref, e.App.Documents.Items(),
		func(d model.Document) model.ID { return d.ID },
		func(d model.Document) string { return d.Name })
}

// documents resolves several references, failing on the first miss.
func (e *Env) documents(refs []string) ([]model.Document, error) {
	out := make([]model.Document, 0, len(refs))
	for _, ref := range refs {
		d, err := e.document(ref)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// chat resolves a chat by id or title.
func (e *Env) chat(ref string) (model.Chat, error) {
	chats := e.App.Chats
	if err := chats.ListChats(e.Ctx); err != nil {
		return model.Chat{}, err
	}
	return matchRef("chat", ref, chats.Snapshot().Chats,
		func(c model.Chat) model.ID { return c.ID },
		func(c model.Chat) string { return c.Title })
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jeranaias/bookshelf-tui/internal/collection"
	"github.com/jeranaias/bookshelf-tui/internal/model"
	"github.com/jeranaias/bookshelf-tui/internal/preview"
	"github.com/jeranaias/bookshelf-tui/internal/ui/components"
	"github.com/jeranaias/bookshelf-tui/internal/util"
)

const docsUsage = "bookshelf docs list|upload|rename|delete|enable|disable|download|parse|status|show|versions <kb> ..."

// HandleDocs runs "bookshelf docs <sub> <kb> ...".
func HandleDocs(env *Env) error {
	p := NewArgParser(env.Args.Raw, "yes", "y", "all", "wait", "plain", "original")
	sub := p.Subcommand()
	if sub == "" {
		sub = "list"
	}
	switch sub {
	case "list", "ls", "upload", "add", "rename", "mv", "delete", "rm",
		"enable", "disable", "download", "get", "parse", "status", "show", "cat", "versions":
	default:
		return &UsageError{Usage: docsUsage, Message: fmt.Sprintf("unknown docs subcommand %q", sub)}
	}
	if p.Positional(1) == "" {
		return ErrMissingArgument("bookshelf", docsUsage)
	}

	if err := env.requireSession(); err != nil {
		return err
	}
	kb, err := env.openShelf(p.Positional(1))
	if err != nil {
		return err
	}

	switch sub {
	case "list", "ls":
		return docsList(env, p, kb)
	case "upload", "add":
		return docsUpload(env, p, kb)
	case "rename", "mv":
		return docsRename(env, p)
	case "delete", "rm":
		return docsDelete(env, p, kb)
	case "enable":
		return docsSetEnabled(env, p, true)
	case "disable":
		return docsSetEnabled(env, p, false)
	case "download", "get":
		return docsDownload(env, p)
	case "parse":
		return docsParse(env, p)
	case "status":
		return docsStatus(env, p)
	case "versions":
		return docsVersions(env, p, kb)
	}
	return docsShow(env, p)
}

// =============================================================================
// LIST
// =============================================================================

func docsList(env *Env, p *ArgParser, kb model.KnowledgeBase) error {
	query := p.Flag("filter")
	items := env.App.Documents.Filter(query)

	return env.emit("docs list", items, func(w io.Writer) {
		if len(items) == 0 {
			if query != "" {
				fmt.Fprintf(w, "No documents in %q match %q.\n", kb.Title, query)
			} else {
				fmt.Fprintf(w, "%q has no documents. Upload with 'bookshelf docs upload %s <files...>'.\n", kb.Title, kb.ID)
			}
			return
		}
		writeDocumentTable(w, items)
	})
}

func writeDocumentTable(w io.Writer, items []model.Document) {
	t := newTable("ID", "NAME", "SIZE", "PARSING", "ENABLED", "UPLOADED").alignRight(2)
	for _, d := range items {
		enabled := "no"
		if d.Enabled {
			enabled = "yes"
		}
		t.add(d.ID.String(), d.Name, util.FormatBytes(d.Size), parsingCell(d), enabled,
			components.FormatTime(d.UploadedAt.Time))
	}
	fmt.Fprint(w, t.render())
}

func parsingCell(d model.Document) string {
	label := d.ParsingStatus.Label()
	if n := d.Pages(); n > 0 {
		label = fmt.Sprintf("%s (%d pages)", label, n)
	}
	switch d.ParsingStatus {
	case model.ParsingDone:
		return SuccessStyle.Render(label)
	case model.ParsingFailed:
		return ErrorStyle.Render(label)
	}
	return WarningStyle.Render(label)
}

// =============================================================================
// UPLOAD
// =============================================================================

func docsUpload(env *Env, p *ArgParser, kb model.KnowledgeBase) error {
	paths := p.PositionalFrom(2)
	if len(paths) == 0 {
		return ErrMissingArgument("files", "bookshelf docs upload <kb> <files...>")
	}

	// Unreadable paths fail on their own; the rest still upload.
	var unreadable []collection.UploadOutcome
	files := make([]collection.UploadFile, 0, len(paths))
	for _, path := range paths {
		f, err := collection.FileFromPath(path)
		if err != nil {
			unreadable = append(unreadable, collection.UploadOutcome{Name: path, Err: err})
			continue
		}
		files = append(files, f)
	}

	report := env.App.Documents.Upload(env.Ctx, files)
	report.Outcomes = append(unreadable, report.Outcomes...)

	type failure struct {
		Name  string `json:"name"`
		Error string `json:"error"`
	}
	var failed []failure
	for _, o := range report.Failed() {
		failed = append(failed, failure{Name: o.Name, Error: Message(o.Err)})
	}
	uploaded := report.Succeeded()

	if env.Args.JSON {
		resp := NewJSONResponse("docs upload", map[string]interface{}{
			"knowledge_base": kb.ID,
			"uploaded":       uploaded,
			"failed":         failed,
		})
		if len(failed) > 0 {
			resp.Success = false
		}
		if err := resp.Write(env.Out); err != nil {
			return err
		}
		if len(failed) > 0 {
			return &silentError{err: report.Err()}
		}
		return nil
	}

	for _, d := range uploaded {
		env.done("Uploaded %s (%s)", d.Name, util.FormatBytes(d.Size))
	}
	for _, f := range failed {
		fmt.Fprintf(env.ErrOut, "%s %s\n", ErrorStyle.Render("✗"), f.Error)
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d of %d files failed to upload: %w", len(failed), len(report.Outcomes), report.Err())
	}
	if !env.Args.Quiet {
		fmt.Fprintln(env.Out, DimStyle.Render("Parsing starts in the background. Check with 'bookshelf docs status "+kb.ID.String()+"'."))
	}
	return nil
}

// =============================================================================
// RENAME / DELETE / ENABLE
// =============================================================================

func docsRename(env *Env, p *ArgParser) error {
	const usage = "bookshelf docs rename <kb> <doc> <name>"
	if p.Positional(2) == "" {
		return ErrMissingArgument("document", usage)
	}
	doc, err := env.document(p.Positional(2))
	if err != nil {
		return err
	}
	name := JoinPositionalArgs(p, 3)
	if name == "" {
		return ErrMissingArgument("name", usage)
	}
	renamed, err := env.App.Documents.Rename(env.Ctx, doc.ID, name)
	if err != nil {
		return err
	}
	return env.emit("docs rename", renamed, func(io.Writer) {
		env.done("Renamed %q to %q", doc.Name, renamed.Name)
	})
}

// targets resolves the documents named from position 2 on, or every
// document with --all.
func targets(env *Env, p *ArgParser, usage string) ([]model.Document, error) {
	if p.BoolFlag("all") {
		return env.App.Documents.Items(), nil
	}
	refs := p.PositionalFrom(2)
	if len(refs) == 0 {
		return nil, ErrMissingArgument("document", usage)
	}
	return env.documents(refs)
}

func ids(docs []model.Document) []model.ID {
	out := make([]model.ID, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}

func docsDelete(env *Env, p *ArgParser, kb model.KnowledgeBase) error {
	docs, err := targets(env, p, "bookshelf docs delete <kb> <docs...> [--yes]")
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return env.emit("docs delete", map[string]int{"deleted": 0}, func(w io.Writer) {
			fmt.Fprintf(w, "%q has no documents.\n", kb.Title)
		})
	}

	question := fmt.Sprintf("Delete %q?", docs[0].Name)
	if len(docs) > 1 {
		question = fmt.Sprintf("Delete %d documents from %q?", len(docs), kb.Title)
	}
	if !confirmed(env, p, question) {
		return &UsageError{Message: "not deleted; pass --yes to confirm"}
	}

	if len(docs) == 1 {
		if err := env.App.Documents.Delete(env.Ctx, docs[0].ID); err != nil {
			return err
		}
		return env.emit("docs delete", map[string]model.ID{"deleted": docs[0].ID}, func(io.Writer) {
			env.done("Deleted %q", docs[0].Name)
		})
	}

	report := env.App.Documents.BulkDelete(env.Ctx, ids(docs))
	return emitBulk(env, "docs delete", report, "Deleted")
}

func docsSetEnabled(env *Env, p *ArgParser, enabled bool) error {
	verb, command := "Enabled", "docs enable"
	if !enabled {
		verb, command = "Disabled", "docs disable"
	}
	docs, err := targets(env, p, "bookshelf "+command+" <kb> <docs...> | --all")
	if err != nil {
		return err
	}
	report := env.App.Documents.BulkSetEnabled(env.Ctx, ids(docs), enabled)
	return emitBulk(env, command, report, verb)
}

// emitBulk reports a bulk operation and fails when any item failed.
func emitBulk(env *Env, command string, report collection.BulkReport, verb string) error {
	type item struct {
		ID      model.ID `json:"id"`
		Name    string   `json:"name,omitempty"`
		Skipped bool     `json:"skipped,omitempty"`
		Error   string   `json:"error,omitempty"`
	}
	items := make([]item, len(report.Items))
	for i, it := range report.Items {
		items[i] = item{ID: it.ID, Name: it.Name, Skipped: it.Skipped}
		if it.Err != nil {
			items[i].Error = Message(it.Err)
		}
	}

	if env.Args.JSON {
		resp := NewJSONResponse(command, map[string]interface{}{
			"items":     items,
			"succeeded": report.Succeeded(),
			"skipped":   report.Skipped(),
			"failed":    report.Failed(),
		})
		resp.Success = report.Failed() == 0
		if err := resp.Write(env.Out); err != nil {
			return err
		}
		if report.Failed() > 0 {
			return &silentError{err: report.Err()}
		}
		return nil
	}

	for _, it := range items {
		if it.Error != "" {
			fmt.Fprintf(env.ErrOut, "%s %s: %s\n", ErrorStyle.Render("✗"), it.Name, it.Error)
		}
	}
	if report.Failed() > 0 {
		return fmt.Errorf("%s: %w", report.Summary(), report.Err())
	}
	env.done("%s: %s", verb, report.Summary())
	return nil
}

// =============================================================================
// DOWNLOAD / SHOW
// =============================================================================

func docsDownload(env *Env, p *ArgParser) error {
	const usage = "bookshelf docs download <kb> <doc> [--dir DIR]"
	if p.Positional(2) == "" {
		return ErrMissingArgument("document", usage)
	}
	doc, err := env.document(p.Positional(2))
	if err != nil {
		return err
	}
	path, err := env.App.Documents.Download(env.Ctx, doc.ID, p.FlagOrDefault("dir", "."))
	if err != nil {
		return err
	}
	return env.emit("docs download", map[string]string{"id": doc.ID.String(), "path": path}, func(io.Writer) {
		env.done("Saved %s", path)
	})
}

func docsShow(env *Env, p *ArgParser) error {
	const usage = "bookshelf docs show <kb> <doc> [--version N] [--original] [--lines N] [--plain]"
	if p.Positional(2) == "" {
		return ErrMissingArgument("document", usage)
	}
	doc, err := env.document(p.Positional(2))
	if err != nil {
		return err
	}

	opts := preview.DefaultOptions()
	opts.MaxLines = p.FlagIntOrDefault("lines", opts.MaxLines)
	opts.Highlight = !p.BoolFlag("plain") && !env.Args.JSON && ColorsEnabled()

	docs := env.App.Documents
	var d preview.Document
	switch {
	case p.BoolFlag("original"):
		d, err = preview.Original(env.Ctx, docs, doc, opts)
	case p.HasFlag("version"):
		n, convErr := p.FlagInt("version")
		if convErr != nil || n < 1 {
			return &UsageError{Usage: usage, Message: "--version takes a number listed by 'bookshelf docs versions'"}
		}
		versions, listErr := docs.ParsedVersions(env.Ctx, doc.ID)
		if listErr != nil {
			return listErr
		}
		if len(versions) == 0 {
			return fmt.Errorf("%q has no parsed versions", doc.Name)
		}
		d, err = preview.LoadVersion(env.Ctx, docs, doc, versions, n-1, opts)
	default:
		d, err = preview.Load(env.Ctx, docs, doc, opts)
	}
	if err != nil {
		return err
	}

	pv := d.Preview
	data := map[string]interface{}{
		"id":        doc.ID,
		"name":      pv.Name,
		"kind":      pv.Kind,
		"pages":     pv.Pages,
		"text":      pv.Text,
		"truncated": pv.Truncated,
		"versions":  len(d.Versions),
	}
	v, parsed := d.Version()
	if parsed {
		data["version"] = d.Index + 1
		data["parsed_id"] = v.ID
		data["parsed_at"] = v.ParsedAt
	}
	return env.emit("docs show", data, func(w io.Writer) {
		if parsed {
			fmt.Fprintln(w, DimStyle.Render(fmt.Sprintf("Parsed version %d of %d, %s", d.Index+1, len(d.Versions), v.Label())))
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, strings.TrimRight(pv.Render(), "\n"))
	})
}

func docsVersions(env *Env, p *ArgParser, kb model.KnowledgeBase) error {
	const usage = "bookshelf docs versions <kb> <doc>"
	if p.Positional(2) == "" {
		return ErrMissingArgument("document", usage)
	}
	doc, err := env.document(p.Positional(2))
	if err != nil {
		return err
	}
	versions, err := env.App.Documents.ParsedVersions(env.Ctx, doc.ID)
	if err != nil {
		return err
	}

	return env.emit("docs versions", versions, func(w io.Writer) {
		if len(versions) == 0 {
			fmt.Fprintf(w, "%q has no parsed versions. Parse it with 'bookshelf docs parse %s %s'.\n", doc.Name, kb.ID, doc.ID)
			return
		}
		t := newTable("#", "ID", "PARSED")
		for i, v := range versions {
			t.add(strconv.Itoa(i+1), v.ID.String(), components.FormatTime(v.ParsedAt.Time))
		}
		fmt.Fprint(w, t.render())
	})
}

// =============================================================================
// PARSING
// =============================================================================

func docsParse(env *Env, p *ArgParser) error {
	docs, err := targets(env, p, "bookshelf docs parse <kb> <docs...> [--wait]")
	if err != nil {
		return err
	}

	started := make([]model.Document, 0, len(docs))
	for _, d := range docs {
		doc, err := env.App.Documents.StartParsing(env.Ctx, d.ID)
		if err != nil {
			return err
		}
		started = append(started, doc)
		if !env.Args.JSON {
			env.done("Parsing %s: %s", doc.Name, doc.ParsingStatus.Label())
		}
	}

	if p.BoolFlag("wait") {
		interval := env.Config.PollInterval()
		for i, d := range started {
			i := i
			if d.ParsingStatus.IsTerminal() {
				continue
			}
			err := env.App.Documents.WatchParsing(env.Ctx, d.ID, interval, func(doc model.Document) {
				started[i] = doc
				if !env.Args.JSON && !env.Args.Quiet {
					fmt.Fprintf(env.Out, "  %s %s\n", doc.Name, parsingCell(doc))
				}
			})
			if err != nil {
				return err
			}
		}
	}

	if env.Args.JSON {
		return NewJSONResponse("docs parse", started).Write(env.Out)
	}
	return nil
}

func docsStatus(env *Env, p *ArgParser) error {
	var docs []model.Document
	if len(p.PositionalFrom(2)) > 0 {
		var err error
		if docs, err = env.documents(p.PositionalFrom(2)); err != nil {
			return err
		}
	} else {
		docs = env.App.Documents.Items()
	}

	return env.emit("docs status", docs, func(w io.Writer) {
		if len(docs) == 0 {
			fmt.Fprintln(w, "No documents.")
			return
		}
		t := newTable("NAME", "PARSING")
		pending := 0
		for _, d := range docs {
			t.add(d.Name, parsingCell(d))
			if d.IsParsing() {
				pending++
			}
		}
		fmt.Fprint(w, t.render())
		if pending > 0 {
			fmt.Fprintln(w, DimStyle.Render(fmt.Sprintf("%d still parsing. Use 'docs parse --wait' to follow.", pending)))
		}
	})
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package collection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/bookshelf-tui/internal/logging"
	"github.com/jeranaias/bookshelf-tui/internal/model"
	"github.com/jeranaias/bookshelf-tui/internal/notify"
)

// =============================================================================
// ALLOW-LIST
// =============================================================================

// allowedExtensions is the set of document formats the backend ingests.
var allowedExtensions = map[string]bool{
	// PDF and word processing
	"pdf": true, "602": true, "abw": true, "cgm": true, "cwk": true,
	"doc": true, "docx": true, "docm": true, "dot": true, "dotm": true,
	"hwp": true, "lwp": true, "pages": true, "rtf": true,
	// Presentations
	"key": true, "ppt": true, "pptm": true, "pptx": true,
	"pot": true, "potm": true, "potx": true,
	// Text
	"txt": true, "md": true, "xml": true, "epub": true,
	// Images
	"jpg": true, "jpeg": true, "png": true, "gif": true, "bmp": true,
	"svg": true, "tiff": true, "webp": true,
	// Web
	"htm": true, "html": true,
	// Spreadsheets
	"xlsx": true, "xls": true, "xlsm": true, "xlsb": true,
	"csv": true, "tsv": true, "numbers": true, "ods": true,
}

// AllowedExtensions returns the accepted extensions, sorted.
func AllowedExtensions() []string {
	out := make([]string, 0, len(allowedExtensions))
	for ext := range allowedExtensions {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// IsAllowedFile reports whether name has an accepted extension.
func IsAllowedFile(name string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	return allowedExtensions[ext]
}

// =============================================================================
// UPLOAD FILES
// =============================================================================

// UploadFile is a file selected for upload.
type UploadFile struct {
	Name string
	Size int64
	Open func() (io.ReadCloser, error)
}

// FileFromPath describes a local file for upload.
func FileFromPath(path string) (UploadFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return UploadFile{}, err
	}
	if info.IsDir() {
		return UploadFile{}, fmt.Errorf("%s is a directory", path)
	}
	return UploadFile{
		Name: filepath.Base(path),
		Size: info.Size(),
		Open: func() (io.ReadCloser, error) { return os.Open(path) },
	}, nil
}

// ValidateUpload checks a file against the allow-list and size limit.
// It returns a *RejectedFileError naming the file.
func ValidateUpload(f UploadFile, maxBytes int64) error {
	if !IsAllowedFile(f.Name) {
		ext := filepath.Ext(f.Name)
		if ext == "" {
			return &RejectedFileError{Name: f.Name, Reason: "files without an extension are not supported"}
		}
		return &RejectedFileError{Name: f.Name, Reason: fmt.Sprintf("%s files are not supported", strings.ToLower(ext))}
	}
	if f.Size > maxBytes {
		return tooLarge(f.Name, f.Size, maxBytes)
	}
	if f.Size == 0 {
		return &RejectedFileError{Name: f.Name, Reason: "file is empty"}
	}
	return nil
}

// UploadOutcome is the result for one file of a batch.
type UploadOutcome struct {
	Name     string
	Document *model.Document
	Err      error
}

// Success reports whether the file was uploaded.
func (o UploadOutcome) Success() bool {
	return o.Err == nil && o.Document != nil
}

// Rejected reports whether the file was refused before any request.
func (o UploadOutcome) Rejected() bool {
	var rej *RejectedFileError
	return errors.As(o.Err, &rej)
}

// BatchReport holds one outcome per input file, in input order.
type BatchReport struct {
	Outcomes []UploadOutcome
}

// Succeeded returns the uploaded documents in input order.
func (r BatchReport) Succeeded() []model.Document {
	var out []model.Document
	for _, o := range r.Outcomes {
		if o.Success() {
			out = append(out, *o.Document)
		}
	}
	return out
}

// Failed returns the outcomes that did not succeed.
func (r BatchReport) Failed() []UploadOutcome {
	var out []UploadOutcome
	for _, o := range r.Outcomes {
		if !o.Success() {
			out = append(out, o)
		}
	}
	return out
}

// Err joins the per-file failures.
func (r BatchReport) Err() error {
	var errs []error
	for _, o := range r.Failed() {
		errs = append(errs, o.Err)
	}
	return errors.Join(errs...)
}

// =============================================================================
// UPLOAD
// =============================================================================

// Upload validates every file first, then uploads the valid ones
// independently with bounded concurrency. Rejected files never reach the
// network. Uploaded documents are inserted at the head of the cache.
func (d *Documents) Upload(ctx context.Context, files []UploadFile) BatchReport {
	report := BatchReport{Outcomes: make([]UploadOutcome, len(files))}

	kbID, gen, err := d.scope()
	if err != nil {
		for i, f := range files {
			report.Outcomes[i] = UploadOutcome{Name: f.Name, Err: err}
		}
		return report
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.limits.Concurrency)
	for i, f := range files {
		report.Outcomes[i].Name = f.Name
		if err := ValidateUpload(f, d.limits.MaxUploadBytes); err != nil {
			report.Outcomes[i].Err = err
			continue
		}
		i, f := i, f
		g.Go(func() error {
			doc, err := d.uploadOne(gctx, kbID, f)
			if err != nil {
				report.Outcomes[i].Err = fmt.Errorf("%s: %w", f.Name, err)
				return nil
			}
			report.Outcomes[i].Document = &doc
			return nil
		})
	}
	_ = g.Wait()

	if d.current(gen) {
		// Newest first at the head, like a fresh list. Equal upload times
		// keep input order.
		added := report.Succeeded()
		sort.SliceStable(added, func(i, j int) bool {
			return added[i].UploadedAt.After(added[j].UploadedAt.Time)
		})
		for i := len(added) - 1; i >= 0; i-- {
			d.cache.Prepend(added[i])
		}
	}

	if n := len(report.Failed()); n > 0 {
		logging.L().Warn("upload batch had failures", "kb", kbID, "failed", n, "total", len(files))
	}
	if n := len(report.Succeeded()); n > 0 {
		d.notifier.Notify(notify.Success(fmt.Sprintf("Uploaded %d of %d files", n, len(files))))
	}
	return report
}

func (d *Documents) uploadOne(ctx context.Context, kbID model.ID, f UploadFile) (model.Document, error) {
	r, err := f.Open()
	if err != nil {
		return model.Document{}, err
	}
	defer r.Close()

	doc, err := d.api.UploadDocument(ctx, kbID, f.Name, r)
	if err != nil {
		return model.Document{}, err
	}
	if doc.KnowledgeBaseID.IsZero() {
		doc.KnowledgeBaseID = kbID
	}
	if doc.Name == "" {
		doc.Name = f.Name
	}
	if doc.ParsingStatus == "" {
		doc.ParsingStatus = model.ParsingPending
	}
	return doc, nil
}

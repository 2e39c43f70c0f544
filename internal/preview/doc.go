// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package preview turns a downloaded document into something a terminal
// can show.
//
// PDFs are converted to plain text. Text formats are syntax highlighted by
// file name. Anything else gets a short metadata summary.
//
// # Key Types
//
//   - Kind: text, pdf or binary
//   - Preview: the rendered result plus what was cut off
//   - Options: read limit, line limit and highlighting style
//
// # Usage
//
//	dl, _ := docs.Open(ctx, id)
//	defer dl.Body.Close()
//	p, err := preview.FromReader(dl.Filename, dl.ContentType, dl.Body, preview.DefaultOptions())
//	fmt.Println(p.Render())
package preview

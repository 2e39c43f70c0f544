// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across bookshelf packages.
//
// # Key Functions
//
// String Utilities:
//   - TruncateRunes, TruncateWidth, PadWidth: rune and column aware truncation
//   - FoldContains: case-insensitive, normalization-insensitive substring match
//
// Formatting:
//   - FormatBytes, FormatCount: compact human-readable numbers
//
// File Operations:
//   - AtomicWriteFile: crash-safe file writing with fsync
//
// # Usage
//
//	if util.FoldContains(kb.Title, query) {
//	    rows = append(rows, util.PadWidth(kb.Title, 30))
//	}
//
//	err := util.AtomicWriteFile(path, data, 0600)
package util

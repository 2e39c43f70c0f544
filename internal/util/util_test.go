// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"os"
	"path/filepath"
	"testing"
)

// =============================================================================
// ATOMIC WRITE TESTS
// =============================================================================

func TestAtomicWriteFile_Basic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.txt")
	data := []byte("hello, world!")

	if err := AtomicWriteFile(path, data, 0600); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if string(content) != string(data) {
		t.Errorf("Content mismatch: got %q, want %q", string(content), string(data))
	}
}

func TestAtomicWriteFile_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subdir", "deep", "test.txt")

	if err := AtomicWriteFile(path, []byte("test data"), 0600); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("File not created: %v", err)
	}
}

func TestAtomicWriteFile_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.txt")

	if err := AtomicWriteFile(path, []byte("initial"), 0600); err != nil {
		t.Fatalf("First write failed: %v", err)
	}
	if err := AtomicWriteFile(path, []byte("updated"), 0600); err != nil {
		t.Fatalf("Second write failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if string(content) != "updated" {
		t.Errorf("Content not updated: got %q", string(content))
	}
}

func TestAtomicWriteFile_NoTempLeftBehind(t *testing.T) {
	dir := t.TempDir()
	if err := AtomicWriteFile(filepath.Join(dir, "a"), []byte("x"), 0600); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected 1 entry, got %d", len(entries))
	}
}

// =============================================================================
// STRING TESTS
// =============================================================================

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello world", 8, "hello..."},
		{"héllo wörld", 8, "héllo..."},
		{"abc", 2, "ab"},
		{"abc", 0, ""},
	}
	for _, tc := range tests {
		if got := TruncateRunes(tc.in, tc.max); got != tc.want {
			t.Errorf("TruncateRunes(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
		}
	}
}

func TestTruncateWidth_WideRunes(t *testing.T) {
	got := TruncateWidth("日本語のテキスト", 8)
	if StringWidth(got) > 8 {
		t.Errorf("TruncateWidth exceeded width: %q (%d)", got, StringWidth(got))
	}
	if TruncateWidth("short", 10) != "short" {
		t.Error("TruncateWidth should not change short strings")
	}
}

func TestPadWidth(t *testing.T) {
	if got := PadWidth("ab", 5); got != "ab   " {
		t.Errorf("PadWidth = %q", got)
	}
}

func TestSafeSubstring(t *testing.T) {
	if got := SafeSubstring("héllo", 1, 3); got != "él" {
		t.Errorf("SafeSubstring = %q", got)
	}
	if got := SafeSubstring("abc", 5, 9); got != "" {
		t.Errorf("SafeSubstring out of range = %q", got)
	}
}

func TestFoldContains(t *testing.T) {
	tests := []struct {
		haystack, needle string
		want             bool
	}{
		{"Quarterly Report", "report", true},
		{"Quarterly Report", "  REPORT ", true},
		{"Café notes", "café", true},
		{"Notes", "minutes", false},
		{"anything", "", true},
	}
	for _, tc := range tests {
		if got := FoldContains(tc.haystack, tc.needle); got != tc.want {
			t.Errorf("FoldContains(%q, %q) = %v, want %v", tc.haystack, tc.needle, got, tc.want)
		}
	}
}

// =============================================================================
// FORMAT TESTS
// =============================================================================

func TestFormatBytes(t *testing.T) {
	tests := map[int64]string{
		512:              "512 B",
		2048:             "2.0 KB",
		20 * 1024 * 1024: "20.0 MB",
	}
	for in, want := range tests {
		if got := FormatBytes(in); got != want {
			t.Errorf("FormatBytes(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatCount(t *testing.T) {
	if got := FormatCount(999); got != "999" {
		t.Errorf("FormatCount(999) = %q", got)
	}
	if got := FormatCount(12345); got != "12.3K" {
		t.Errorf("FormatCount(12345) = %q", got)
	}
	if got := FormatCount(2_500_000); got != "2.5M" {
		t.Errorf("FormatCount(2500000) = %q", got)
	}
}

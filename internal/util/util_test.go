// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFirstLines(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"fewer lines", "a\nb", 5, "a\nb"},
		{"exact", "a\nb\nc", 3, "a\nb\nc"},
		{"cut", "1\n2\n3\n4\n5\n6\n7", 5, "1\n2\n3\n4\n5"},
		{"zero", "a", 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FirstLines(tt.in, tt.n); got != tt.want {
				t.Errorf("FirstLines(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
			}
		})
	}
}

func TestTruncateBytes(t *testing.T) {
	got, cut := TruncateBytes("hello", 10)
	if got != "hello" || cut {
		t.Errorf("TruncateBytes short = %q, %v", got, cut)
	}

	got, cut = TruncateBytes("héllo", 2)
	if got != "h" || !cut {
		t.Errorf("TruncateBytes mid-rune = %q, %v, want %q, true", got, cut, "h")
	}
}

func TestWriteFileAtomicAndCopy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "a.txt")

	if err := WriteFileAtomic(path, []byte("one"), 0644); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}
	if !FileExists(path) {
		t.Fatal("file was not created")
	}

	dst := filepath.Join(dir, "b.txt")
	if err := CopyFile(path, dst); err != nil {
		t.Fatalf("CopyFile: %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "one" {
		t.Errorf("copied content = %q, want %q", data, "one")
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	for _, e := range entries {
		if e.Name() != "a.txt" {
			t.Errorf("leftover temp file %s", e.Name())
		}
	}
}

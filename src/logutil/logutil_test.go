package logutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRedactKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "********"},
		{"short", "********"},
		{"sk-abcdefghijklmnop", "sk-a...mnop"},
	}
	for _, tt := range tests {
		if got := RedactKey(tt.in); got != tt.want {
			t.Errorf("RedactKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitize(t *testing.T) {
	if got := Sanitize("a\nb\tc\x01"); got != `a\nb\tc\x01` {
		t.Errorf("Sanitize escaped = %q", got)
	}
	long := strings.Repeat("x", maxLoggedText+50)
	got := Sanitize(long)
	if !strings.HasSuffix(got, "...(truncated)") {
		t.Errorf("expected truncation marker, got suffix %q", got[len(got)-20:])
	}
	if len(got) != maxLoggedText+len("...(truncated)") {
		t.Errorf("unexpected truncated length %d", len(got))
	}
}

func TestRotatingWriterRotates(t *testing.T) {
	path := filepath.Join(t.TempDir(), LogFileName)
	w, err := newRotatingWriter(path, 16)
	if err != nil {
		t.Fatalf("newRotatingWriter: %v", err)
	}
	defer w.Close()

	if _, err := w.Write([]byte("0123456789\n")); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("abcdefghij\n")); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(archiveName(path, 1)); err != nil {
		t.Fatalf("expected archive .1 after rotation: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "abcdefghij\n" {
		t.Errorf("current log = %q, want second write only", data)
	}
}

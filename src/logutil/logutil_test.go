package logutil

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDebugfGatedByLevel(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(prev)
	defer SetLevel("info")

	SetLevel("info")
	Debugf("hidden %d", 1)
	if buf.Len() != 0 {
		t.Fatalf("Expected no output at info level, got %q", buf.String())
	}

	SetLevel("DEBUG")
	if !DebugEnabled() {
		t.Fatalf("Expected debug to be enabled")
	}
	Debugf("shown %d", 2)
	if !strings.Contains(buf.String(), "DEBUG: shown 2") {
		t.Errorf("Expected debug line, got %q", buf.String())
	}
}

func TestRotateFile(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "app.log")

	for i, content := range []string{"first", "second", "third", "fourth", "fifth"} {
		if err := os.WriteFile(base, []byte(content), 0o644); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
		rotateFile(base)
	}

	if _, err := os.Stat(base); !os.IsNotExist(err) {
		t.Errorf("Expected base file to be moved away, stat err = %v", err)
	}
	want := map[int]string{1: "fifth", 2: "fourth", 3: "third"}
	for n, content := range want {
		got, err := os.ReadFile(archiveName(base, n))
		if err != nil {
			t.Fatalf("read archive %d: %v", n, err)
		}
		if string(got) != content {
			t.Errorf("archive %d = %q, expected %q", n, got, content)
		}
	}
	if _, err := os.Stat(archiveName(base, maxArchives+1)); !os.IsNotExist(err) {
		t.Errorf("Expected no archive beyond %d", maxArchives)
	}
}

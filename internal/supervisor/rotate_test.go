package supervisor

import (
	"os"
	"path/filepath"
	"testing"

	"silexa/mcp-supervisor/internal/layout"
)

func TestRotateLogsTrimsOversizedFile(t *testing.T) {
	dir := t.TempDir()
	l := layout.New(dir)
	if err := os.MkdirAll(l.LogsDir(), 0o755); err != nil {
		t.Fatal(err)
	}

	path := l.LogPath("demo")
	big := make([]byte, perFileLogCap+1024)
	for i := range big {
		big[i] = 'x'
	}
	if err := os.WriteFile(path, big, 0o644); err != nil {
		t.Fatal(err)
	}

	sup := &Supervisor{layout: l}
	sup.rotateLogs()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != perFileLogCap {
		t.Errorf("size after rotation = %d, want %d", info.Size(), perFileLogCap)
	}
}

func TestRotateLogsLeavesSmallFileUntouched(t *testing.T) {
	dir := t.TempDir()
	l := layout.New(dir)
	if err := os.MkdirAll(l.LogsDir(), 0o755); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(l.LogsDir(), "small.log")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	sup := &Supervisor{layout: l}
	sup.rotateLogs()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello" {
		t.Errorf("content changed: %q", data)
	}
}

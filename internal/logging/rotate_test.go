package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRotatingFileRotates(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "logs", "events.log")

	rf, err := NewRotatingFile(path, 64)
	if err != nil {
		t.Fatalf("NewRotatingFile() error: %v", err)
	}
	defer rf.Close()

	line := bytes.Repeat([]byte("a"), 40)
	rf.Write(line)
	rf.Write(line)

	if _, err := os.Stat(path + ".old"); err != nil {
		t.Fatalf("expected rotated file, got %v", err)
	}
	data, _ := os.ReadFile(path)
	if len(data) != 40 {
		t.Errorf("expected fresh file with 40 bytes, got %d", len(data))
	}
}

func TestRotatingFileFailedRotationKeepsWriting(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "events.log")

	// A non-empty directory at <path>.old cannot be removed or replaced.
	if err := os.MkdirAll(filepath.Join(path+".old", "keep"), 0755); err != nil {
		t.Fatal(err)
	}

	rf, err := NewRotatingFile(path, 64)
	if err != nil {
		t.Fatalf("NewRotatingFile() error: %v", err)
	}
	defer rf.Close()

	line := bytes.Repeat([]byte("a"), 40)
	if _, err := rf.Write(line); err != nil {
		t.Fatalf("first Write() error: %v", err)
	}
	n, err := rf.Write(line)
	if err == nil {
		t.Error("expected the rotation error to be reported")
	}
	if n != len(line) {
		t.Errorf("expected the line written despite the failed rotation, got %d bytes", n)
	}
	if _, err := rf.Write([]byte("b")); err == nil {
		t.Error("expected rotation to be retried and fail again")
	}

	data, _ := os.ReadFile(path)
	if len(data) != 81 {
		t.Errorf("expected 81 bytes in the original file, got %d", len(data))
	}
	if err := rf.Sync(); err != nil {
		t.Errorf("Sync() after failed rotation: %v", err)
	}
}

func TestRotatingFileAppends(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "events.log")
	os.WriteFile(path, []byte("existing\n"), 0644)

	rf, err := NewRotatingFile(path, 0)
	if err != nil {
		t.Fatalf("NewRotatingFile() error: %v", err)
	}
	rf.Write([]byte("next\n"))
	rf.Close()

	data, _ := os.ReadFile(path)
	if string(data) != "existing\nnext\n" {
		t.Errorf("unexpected contents %q", data)
	}
	if _, err := rf.Write([]byte("x")); err == nil {
		t.Error("expected error writing after Close")
	}
}

func TestFileLogger(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "warn.log")
	logger, err := NewFileLogger(path, 1024*1024)
	if err != nil {
		t.Fatalf("NewFileLogger() error: %v", err)
	}
	logger.Warn("drift detected")
	logger.Sync()

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "drift detected") {
		t.Errorf("expected message in log file, got %q", data)
	}
}

func TestNewBadLevel(t *testing.T) {
	if _, err := New(Options{Level: "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
}

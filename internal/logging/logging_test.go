package logging

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pandeptwidyaop/modbackup/internal/config"
)

func TestSetup_ConsoleAndFile(t *testing.T) {
	defer log.SetOutput(os.Stderr)

	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "modbackup.log")

	closer, err := Setup(config.LogConfig{File: path, MaxSizeMB: 1}, &console)
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	log.Printf("[Backup] hello")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if !strings.Contains(console.String(), "[Backup] hello") {
		t.Errorf("expected console output, got %q", console.String())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected log file: %v", err)
	}
	if !strings.Contains(string(data), "[Backup] hello") {
		t.Errorf("expected file output, got %q", data)
	}
}

func TestSetup_Quiet(t *testing.T) {
	defer log.SetOutput(os.Stderr)

	closer, err := Setup(config.LogConfig{}, nil)
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	defer closer.Close()

	if log.Writer() == os.Stderr {
		t.Error("expected logs to be discarded without a console or file")
	}
}

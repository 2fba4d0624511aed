package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestResolveLogFilePath(t *testing.T) {
	workDir := t.TempDir()
	oldWD, err := os.Getwd()
	if err != nil {
		t.Fatalf("get wd failed: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(oldWD) })
	if err := os.Chdir(workDir); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}
	realWorkDir, err := filepath.EvalSymlinks(workDir)
	if err != nil {
		t.Fatalf("resolve work dir symlink failed: %v", err)
	}
	customDir := filepath.Join(t.TempDir(), "nested", "ledger")

	cases := []struct {
		name    string
		options Options
		dir     string
		file    string
	}{
		{"defaults", Options{}, filepath.Join(realWorkDir, defaultLogDirName), defaultLogFilename},
		{"custom", Options{Dir: customDir, Filename: " payouts.log "}, customDir, "payouts.log"},
	}
	for _, tc := range cases {
		got, err := resolveLogFilePath(tc.options)
		if err != nil {
			t.Fatalf("%s: resolve log path failed: %v", tc.name, err)
		}
		gotDir, err := filepath.EvalSymlinks(filepath.Dir(got))
		if err != nil {
			t.Fatalf("%s: resolve got dir failed: %v", tc.name, err)
		}
		wantDir, err := filepath.EvalSymlinks(tc.dir)
		if err != nil {
			t.Fatalf("%s: resolve want dir failed: %v", tc.name, err)
		}
		if gotDir != wantDir || filepath.Base(got) != tc.file {
			t.Fatalf("%s: unexpected log path %s", tc.name, got)
		}
		if _, err := os.Stat(got); err != nil {
			t.Fatalf("%s: expected log file to be created: %v", tc.name, err)
		}
	}
}

func TestNewDebugWritesConsoleOnly(t *testing.T) {
	tmpDir := t.TempDir()
	log := New("debug", Options{Dir: tmpDir, Filename: "debug.log"})
	log.Info("ledger_debug_log_test")
	_ = log.Sync()

	if _, err := os.Stat(filepath.Join(tmpDir, "debug.log")); !os.IsNotExist(err) {
		t.Fatalf("debug mode should not create log file")
	}
}

func TestResolveLevel(t *testing.T) {
	if got := resolveLevel("", true).Level(); got.String() != "debug" {
		t.Fatalf("debug mode default want debug got %s", got)
	}
	if got := resolveLevel("", false).Level(); got.String() != "info" {
		t.Fatalf("release mode default want info got %s", got)
	}
	if got := resolveLevel("WARN", true).Level(); got.String() != "warn" {
		t.Fatalf("explicit level want warn got %s", got)
	}
	if got := resolveLevel("verbose", false).Level(); got.String() != "info" {
		t.Fatalf("unknown level should fall back to info, got %s", got)
	}
}

func TestNewReleaseTagsServiceAndFiltersLevel(t *testing.T) {
	tmpDir := t.TempDir()
	log := New("release", Options{Dir: tmpDir, Filename: "level.log", Level: "warn"})
	log.Info("payout_settle_started")
	log.Warn("payout_settle_transient_failed")
	_ = log.Sync()

	content, err := os.ReadFile(filepath.Join(tmpDir, "level.log"))
	if err != nil {
		t.Fatalf("read log failed: %v", err)
	}
	text := string(content)
	if strings.Contains(text, "payout_settle_started") {
		t.Fatalf("info event should be filtered at warn level: %s", text)
	}
	if !strings.Contains(text, "payout_settle_transient_failed") || !strings.Contains(text, `"service":"vendorledger"`) {
		t.Fatalf("expected warn event tagged with service, got=%s", text)
	}
}

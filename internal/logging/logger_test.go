package logging

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfigureDisabledIsNoop(t *testing.T) {
	logsDir = ""
	if err := Configure("", false, nil, "info", false); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if IsDebugMode() {
		t.Fatal("expected debug mode disabled")
	}
	// Logging calls must not panic or create files.
	Syntax("probe")
	Get(CategorySyntax).Error("probe")
}

func TestConfigureEnabledWritesLogFile(t *testing.T) {
	dir := t.TempDir()
	logsDir = ""
	if err := Configure(dir, true, nil, "debug", false); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	defer CloseAll()

	MaskDebug("building span for %s", "add")
	Get(CategoryMask).Info("flush")

	entries, err := os.ReadDir(filepath.Join(dir, "logs"))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	found := false
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".log" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected at least one .log file to be created")
	}
}

func TestCategoryDisabledSuppressesOutput(t *testing.T) {
	dir := t.TempDir()
	logsDir = ""
	if err := Configure(dir, true, map[string]bool{"gate": false}, "debug", false); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	defer CloseAll()

	if IsCategoryEnabled(CategoryGate) {
		t.Fatal("expected gate category disabled")
	}
	if !IsCategoryEnabled(CategoryMask) {
		t.Fatal("expected mask category enabled by default")
	}
}

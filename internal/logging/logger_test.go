package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func setupDebugWorkspace(t *testing.T, cfg loggingConfig) string {
	t.Helper()

	ws := t.TempDir()
	dir := filepath.Join(ws, ".meshrouter")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}

	data, err := json.Marshal(configFile{Logging: cfg})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "logging.json"), data, 0644); err != nil {
		t.Fatalf("write config failed: %v", err)
	}
	return ws
}

func resetState() {
	CloseAll()
	logsDir = ""
	workspace = ""
	config = loggingConfig{}
	configLoaded = false
	logLevel = LevelInfo
}

func TestInitializeWithoutConfigIsSilent(t *testing.T) {
	defer resetState()

	ws := t.TempDir()
	if err := Initialize(ws); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	if IsDebugMode() {
		t.Error("debug mode should be off without a config file")
	}
	if _, err := os.Stat(filepath.Join(ws, ".meshrouter", "logs")); !os.IsNotExist(err) {
		t.Error("logs directory should not be created in production mode")
	}
}

func TestCategoryFileCreated(t *testing.T) {
	defer resetState()

	ws := setupDebugWorkspace(t, loggingConfig{DebugMode: true, Level: "debug"})
	if err := Initialize(ws); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	Firewall("rule %s fired", "delete-needs-objects")
	CloseAll()

	entries, err := os.ReadDir(filepath.Join(ws, ".meshrouter", "logs"))
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}

	found := false
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), "_firewall.log") {
			found = true
		}
	}
	if !found {
		t.Error("expected a firewall category log file")
	}
}

func TestCategoryDisable(t *testing.T) {
	defer resetState()

	ws := setupDebugWorkspace(t, loggingConfig{
		DebugMode:  true,
		Level:      "debug",
		Categories: map[string]bool{"vector": false},
	})
	if err := Initialize(ws); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	if IsCategoryEnabled(CategoryVector) {
		t.Error("vector category should be disabled")
	}
	if !IsCategoryEnabled(CategoryRouter) {
		t.Error("unlisted categories should default to enabled")
	}

	// Writing to a disabled category must be a no-op, not a panic.
	Vector("should go nowhere")
}

func TestLevelFiltering(t *testing.T) {
	defer resetState()

	ws := setupDebugWorkspace(t, loggingConfig{DebugMode: true, Level: "warn"})
	if err := Initialize(ws); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	l := Get(CategoryRouter)
	l.Debug("hidden")
	l.Info("hidden")
	l.Warn("visible warn")
	l.Error("visible error")
	CloseAll()

	logs, err := filepath.Glob(filepath.Join(ws, ".meshrouter", "logs", "*_router.log"))
	if err != nil || len(logs) != 1 {
		t.Fatalf("expected one router log, got %v (err=%v)", logs, err)
	}
	data, err := os.ReadFile(logs[0])
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	content := string(data)
	if strings.Contains(content, "hidden") {
		t.Error("debug/info lines leaked through warn level")
	}
	if !strings.Contains(content, "visible warn") || !strings.Contains(content, "visible error") {
		t.Error("warn/error lines missing")
	}
}

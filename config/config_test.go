package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openomni/omni/session"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Model == "" || cfg.MaxSteps != 10 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Ralph.MaxIterations != 20 || cfg.Ralph.CompletionPromise != "TASK COMPLETE" {
		t.Fatalf("unexpected ralph defaults: %+v", cfg.Ralph)
	}
	if cfg.Session.Backend != BackendMemory {
		t.Fatalf("unexpected session backend: %q", cfg.Session.Backend)
	}
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "omni.toml")
	data := `
model = "claude-sonnet-4"
max_steps = 25
parallel_tools = true

[ralph]
max_iterations = 5
completion_promise = "ALL DONE"

[session]
backend = "sqlite"
path = "/tmp/omni-test.db"
ttl = "24h"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Model != "claude-sonnet-4" || cfg.MaxSteps != 25 || !cfg.ParallelTools {
		t.Fatalf("toml values not applied: %+v", cfg)
	}
	if cfg.Ralph.MaxIterations != 5 || cfg.Ralph.CompletionPromise != "ALL DONE" {
		t.Fatalf("ralph section not applied: %+v", cfg.Ralph)
	}
	// Untouched fields keep their defaults.
	if cfg.Ralph.IdleThreshold != 3 {
		t.Fatalf("default lost on partial section: %+v", cfg.Ralph)
	}
	if cfg.Session.Backend != BackendSQLite || cfg.SessionTTL() != 24*time.Hour {
		t.Fatalf("session section not applied: %+v", cfg.Session)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "omni.toml")
	if err := os.WriteFile(path, []byte(`model = "from-file"`), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OMNI_MODEL", "from-env")
	t.Setenv("OMNI_MAX_STEPS", "42")
	t.Setenv("OMNI_PARALLEL_TOOLS", "true")
	t.Setenv("OMNI_SESSION_BACKEND", "file")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Model != "from-env" {
		t.Fatalf("env should beat file: %q", cfg.Model)
	}
	if cfg.MaxSteps != 42 || !cfg.ParallelTools {
		t.Fatalf("env values not applied: %+v", cfg)
	}
	if cfg.Session.Backend != BackendFile {
		t.Fatalf("session env not applied: %q", cfg.Session.Backend)
	}
}

func TestMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MaxSteps != 10 {
		t.Fatalf("expected defaults for missing file: %+v", cfg)
	}
}

func TestValidation(t *testing.T) {
	cases := map[string]func(*Config){
		"empty model":     func(c *Config) { c.Model = "" },
		"zero max steps":  func(c *Config) { c.MaxSteps = 0 },
		"bad strategy":    func(c *Config) { c.Ralph.ContextStrategy = "psychic" },
		"bad backend":     func(c *Config) { c.Session.Backend = "tape" },
		"zero iterations": func(c *Config) { c.Ralph.MaxIterations = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("invalid config accepted")
			}
		})
	}
}

func TestOpenSessionStore(t *testing.T) {
	cfg := Default()

	mem, err := cfg.OpenSessionStore()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := mem.(*session.MemoryStore); !ok {
		t.Fatalf("expected memory store, got %T", mem)
	}

	cfg.Session.Backend = BackendFile
	cfg.Session.Dir = t.TempDir()
	file, err := cfg.OpenSessionStore()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := file.(*session.FileStore); !ok {
		t.Fatalf("expected file store, got %T", file)
	}

	cfg.Session.Backend = BackendSQLite
	cfg.Session.Path = filepath.Join(t.TempDir(), "s.db")
	db, err := cfg.OpenSessionStore()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if _, ok := db.(*session.SQLStore); !ok {
		t.Fatalf("expected sqlite store, got %T", db)
	}
}

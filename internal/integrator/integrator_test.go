package integrator

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"silexa/mcp-supervisor/internal/installer"
	"silexa/mcp-supervisor/internal/layout"
	"silexa/mcp-supervisor/internal/registry"
)

func newTestIntegrator(t *testing.T) (*Integrator, layout.Layout) {
	t.Helper()
	dataDir := t.TempDir()
	l := layout.New(dataDir)
	store, err := registry.Open(l.RegistryPath())
	if err != nil {
		t.Fatal(err)
	}
	fixedNow := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return &Integrator{Layout: l, Store: store, Clock: func() time.Time { return fixedNow }}, l
}

func TestRegisterWritesManifestAndUpsertsEntry(t *testing.T) {
	integ, l := newTestIntegrator(t)

	installDir := filepath.Join(l.ServerDir("demo"), "install")
	if err := os.MkdirAll(installDir, 0o755); err != nil {
		t.Fatal(err)
	}
	runtimeDir := filepath.Join(l.ServerDir("demo"), "runtime")
	if err := os.MkdirAll(runtimeDir, 0o755); err != nil {
		t.Fatal(err)
	}
	binDir := filepath.Join(l.ServerDir("demo"), "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatal(err)
	}
	entryScript := filepath.Join(binDir, "demo")
	if err := os.WriteFile(entryScript, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	result := installer.Result{
		InstallPath:        installDir,
		RuntimePath:        runtimeDir,
		BinPath:            binDir,
		EntryCommand:       entryScript,
		RuntimeKind:        "node",
		PackageManagerKind: "npm",
		InstalledVersion:   "1.0.0",
	}

	entry, err := integ.Register("demo", result, registry.SourceJSPackage, "example-mcp")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if entry.Health.RestartPolicy != registry.RestartOnFailure {
		t.Errorf("RestartPolicy = %v", entry.Health.RestartPolicy)
	}
	if entry.Health.IntervalSec != defaultProbeIntervalSec {
		t.Errorf("IntervalSec = %d", entry.Health.IntervalSec)
	}

	found, err := integ.Store.Find("demo")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if found.Entry.Command != entryScript {
		t.Errorf("Entry.Command = %q", found.Entry.Command)
	}

	manifestData, err := os.ReadFile(l.ManifestPath("demo"))
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	var manifest Manifest
	if err := json.Unmarshal(manifestData, &manifest); err != nil {
		t.Fatal(err)
	}
	if manifest.Slug != "demo" {
		t.Errorf("manifest.Slug = %q", manifest.Slug)
	}
	if manifest.Installation.Runtime != "node" {
		t.Errorf("manifest.Installation.Runtime = %q", manifest.Installation.Runtime)
	}
}

func TestRegisterRejectsMissingInstallPath(t *testing.T) {
	integ, _ := newTestIntegrator(t)
	result := installer.Result{InstallPath: "/nonexistent/path/xyz"}
	if _, err := integ.Register("demo", result, registry.SourceGit, "uri"); err == nil {
		t.Fatal("expected error for missing installPath")
	}
}

func TestRegisterRejectsNonExecutableEntryCommand(t *testing.T) {
	integ, l := newTestIntegrator(t)
	binDir := filepath.Join(l.ServerDir("demo"), "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatal(err)
	}
	entryScript := filepath.Join(binDir, "demo")
	if err := os.WriteFile(entryScript, []byte("not executable"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := installer.Result{EntryCommand: entryScript}
	if _, err := integ.Register("demo", result, registry.SourceGit, "uri"); err == nil {
		t.Fatal("expected error for non-executable entry command")
	}
}

func TestRegisterAllowsBareCommandName(t *testing.T) {
	integ, _ := newTestIntegrator(t)
	result := installer.Result{EntryCommand: "node"}
	if _, err := integ.Register("demo", result, registry.SourceJSPackage, "example-mcp"); err != nil {
		t.Fatalf("Register: %v", err)
	}
}

func TestTransportForHTTPHealthURL(t *testing.T) {
	result := installer.Result{Environment: map[string]string{"HEALTH_HTTP_URL": "http://localhost:9000/health"}}
	if got := transportFor(result); got != registry.TransportHTTP {
		t.Errorf("transportFor = %v, want http", got)
	}
}

// Package integrator turns a successful installer.Result into a durable
// ServerEntry: manifest write plus registry upsert (spec section 4.10).
package integrator

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"silexa/mcp-supervisor/internal/installer"
	"silexa/mcp-supervisor/internal/layout"
	"silexa/mcp-supervisor/internal/registry"
)

const (
	defaultProbeIntervalSec = 30
	defaultProbeTimeoutSec  = 10
	defaultMaxRestarts      = 3
)

// Manifest is the on-disk record written alongside a server's installed
// files, distinct from (but largely mirroring) the registry's ServerEntry.
type Manifest struct {
	Version      int               `json:"version"`
	Slug         string            `json:"slug"`
	Source       registry.Source   `json:"source"`
	Installation Installation      `json:"installation"`
	Entry        registry.Entry    `json:"entry"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Installation records installer provenance for the manifest.
type Installation struct {
	Timestamp          time.Time `json:"timestamp"`
	Runtime            string    `json:"runtime"`
	PackageManager     string    `json:"packageManager,omitempty"`
	InstalledVersion   string    `json:"installedVersion,omitempty"`
	InstallPath        string    `json:"installPath"`
	RuntimePath        string    `json:"runtimePath"`
	BinPath            string    `json:"binPath"`
}

// Integrator validates an installer.Result, persists its manifest, and
// upserts the corresponding ServerEntry into the registry.
type Integrator struct {
	Layout layout.Layout
	Store  *registry.Store
	Clock  func() time.Time
}

// New returns an Integrator rooted at the given layout and backed by store.
func New(l layout.Layout, store *registry.Store) *Integrator {
	return &Integrator{Layout: l, Store: store, Clock: time.Now}
}

// Register implements jobengine.Integrator.
func (i *Integrator) Register(slug string, result installer.Result, sourceKind registry.SourceKind, uri string) (registry.ServerEntry, error) {
	if err := validateResult(result); err != nil {
		return registry.ServerEntry{}, fmt.Errorf("integrator: %w", err)
	}

	manifest := Manifest{
		Version: 1,
		Slug:    slug,
		Source:  registry.Source{Kind: sourceKind, URI: uri},
		Installation: Installation{
			Timestamp:        i.clock(),
			Runtime:          result.RuntimeKind,
			PackageManager:   result.PackageManagerKind,
			InstalledVersion: result.InstalledVersion,
			InstallPath:      result.InstallPath,
			RuntimePath:      result.RuntimePath,
			BinPath:          result.BinPath,
		},
		Entry: registry.Entry{
			Transport: transportFor(result),
			Command:   result.EntryCommand,
			Args:      result.EntryArgs,
			Env:       result.Environment,
		},
		Metadata: result.Metadata,
	}
	if err := i.writeManifest(slug, manifest); err != nil {
		return registry.ServerEntry{}, fmt.Errorf("integrator: %w", err)
	}
	if err := i.Layout.WriteLauncher(slug, result.EntryCommand, result.EntryArgs, result.Environment); err != nil {
		return registry.ServerEntry{}, fmt.Errorf("integrator: %w", err)
	}

	entry := registry.ServerEntry{
		Slug:    slug,
		Name:    slug,
		Source:  manifest.Source,
		Runtime: registry.Runtime{Kind: registry.RuntimeKind(result.RuntimeKind), ManagerHint: result.PackageManagerKind},
		Entry:   manifest.Entry,
		Health: registry.Health{
			ProbeKind:     manifest.Entry.Transport,
			IntervalSec:   defaultProbeIntervalSec,
			TimeoutSec:    defaultProbeTimeoutSec,
			RestartPolicy: registry.RestartOnFailure,
			MaxRestarts:   defaultMaxRestarts,
		},
	}
	if err := i.Store.Upsert(entry); err != nil {
		return registry.ServerEntry{}, fmt.Errorf("integrator: upsert %q: %w", slug, err)
	}
	return entry, nil
}

func (i *Integrator) clock() time.Time {
	if i.Clock != nil {
		return i.Clock()
	}
	return time.Now()
}

// validateResult checks the existence and executability rules from spec
// section 4.10 step 1.
func validateResult(result installer.Result) error {
	for name, path := range map[string]string{
		"installPath": result.InstallPath,
		"runtimePath": result.RuntimePath,
		"binPath":     result.BinPath,
	} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("%s %q does not exist: %w", name, path, err)
		}
	}
	if result.EntryCommand == "" {
		return nil
	}
	info, err := os.Stat(result.EntryCommand)
	if err != nil {
		// EntryCommand may be a bare name resolved via PATH (e.g. "node",
		// "python3") rather than an absolute path; only reject it when it
		// looks like a path that should exist but doesn't.
		if isPathLike(result.EntryCommand) {
			return fmt.Errorf("entry command %q does not exist: %w", result.EntryCommand, err)
		}
		return nil
	}
	if info.Mode()&0o111 == 0 {
		return fmt.Errorf("entry command %q is not executable", result.EntryCommand)
	}
	return nil
}

func isPathLike(command string) bool {
	for _, r := range command {
		if r == '/' {
			return true
		}
	}
	return false
}

func transportFor(result installer.Result) registry.Transport {
	if url, ok := result.Environment["HEALTH_HTTP_URL"]; ok && url != "" {
		return registry.TransportHTTP
	}
	return registry.TransportStdio
}

func (i *Integrator) writeManifest(slug string, manifest Manifest) error {
	path := i.Layout.ManifestPath(slug)
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	data = append(data, '\n')
	if err := os.MkdirAll(i.Layout.ServerDir(slug), 0o755); err != nil {
		return fmt.Errorf("mkdir server dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

package installer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"context"

	"silexa/mcp-supervisor/internal/runner"
)

// JSPkg installs a named package from an npm-compatible registry (spec
// section 4.7, "JS-package installer").
type JSPkg struct {
	Runner     runner.Runner
	RuntimeDir string
	BinDir     string
	Package    string
	Options    JSPkgOptions
}

func (j JSPkg) Install(ctx context.Context, slug string, logger Logger) (Result, error) {
	manager := pickJSManager(ctx, j.Runner, j.Options.PackageManagerHint)
	logger.Log(StageValidation, LogInfo, fmt.Sprintf("using package manager %s", manager))
	logger.Progress(StageValidation, 0)

	pkgSpec := j.Package
	if j.Options.Version != "" {
		pkgSpec = j.Package + "@" + j.Options.Version
	}

	if err := validateJSPackageExists(ctx, j.Runner, manager, pkgSpec, j.Options.RegistryURL); err != nil {
		return Result{}, fmt.Errorf("installer(js-pkg): %w", err)
	}
	logger.Progress(StageValidation, 100)

	logger.Log(StageDownloading, LogInfo, "resolving "+pkgSpec)
	logger.Progress(StageDownloading, 50)

	if err := os.MkdirAll(j.RuntimeDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("installer(js-pkg): mkdir runtime dir: %w", err)
	}
	logger.Progress(StageDownloading, 100)

	logger.Log(StageInstalling, LogInfo, "installing "+pkgSpec)
	logger.Progress(StageInstalling, 0)

	args := buildJSInstallArgs(manager, pkgSpec, j.Options)
	var extraEnv []string
	if j.Options.AuthToken != "" {
		extraEnv = append(extraEnv, "NPM_CONFIG__AUTH="+j.Options.AuthToken)
	}
	result, err := j.Runner.Run(ctx, manager, args, runner.Options{Dir: j.RuntimeDir, ExtraEnv: extraEnv})
	if err != nil {
		return Result{}, fmt.Errorf("installer(js-pkg): %s install: %w", manager, err)
	}
	if result.ExitCode != 0 {
		return Result{}, fmt.Errorf("installer(js-pkg): %s install exited %d: %s", manager, result.ExitCode, result.Stderr)
	}
	logger.Progress(StageInstalling, 100)

	logger.Log(StageConfiguring, LogInfo, "locating installed package manifest")
	logger.Progress(StageConfiguring, 50)

	pkgDir := filepath.Join(j.RuntimeDir, "node_modules", j.Package)
	command, args2, version, err := resolveJSPackageEntry(pkgDir, j.Package)
	if err != nil {
		return Result{}, fmt.Errorf("installer(js-pkg): %w", err)
	}
	logger.Progress(StageConfiguring, 100)

	env := map[string]string{
		"PATH": filepath.Join(j.RuntimeDir, "node_modules", ".bin") + string(os.PathListSeparator) + os.Getenv("PATH"),
	}

	return Result{
		InstallPath:        pkgDir,
		RuntimePath:        j.RuntimeDir,
		BinPath:            j.BinDir,
		EntryCommand:       command,
		EntryArgs:          args2,
		Environment:        env,
		RuntimeKind:        "node",
		PackageManagerKind: manager,
		InstalledVersion:   version,
		Metadata:           map[string]string{"package": j.Package},
	}, nil
}

// pickJSManager resolves the first available package manager, preferring
// the caller's hint and falling back npm -> yarn -> pnpm.
func pickJSManager(ctx context.Context, r runner.Runner, hint string) string {
	order := []string{"npm", "yarn", "pnpm"}
	if hint != "" {
		order = append([]string{hint}, order...)
	}
	seen := map[string]bool{}
	for _, candidate := range order {
		if seen[candidate] {
			continue
		}
		seen[candidate] = true
		if result, err := r.Run(ctx, candidate, []string{"--version"}, runner.Options{}); err == nil && result.ExitCode == 0 {
			return candidate
		}
	}
	return "npm"
}

func validateJSPackageExists(ctx context.Context, r runner.Runner, manager, pkgSpec, registryURL string) error {
	args := []string{"view", pkgSpec, "version"}
	if registryURL != "" {
		args = append(args, "--registry", registryURL)
	}
	result, err := r.Run(ctx, manager, args, runner.Options{})
	if err != nil {
		return fmt.Errorf("validate package %q: %w", pkgSpec, err)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("package %q not found in registry: %s", pkgSpec, result.Stderr)
	}
	return nil
}

func buildJSInstallArgs(manager, pkgSpec string, opts JSPkgOptions) []string {
	switch manager {
	case "yarn":
		args := []string{"add", pkgSpec}
		if opts.Global {
			args = append([]string{"global"}, args...)
		}
		return args
	case "pnpm":
		args := []string{"add", pkgSpec}
		if opts.Global {
			args = append(args, "--global")
		}
		return args
	default:
		args := []string{"install", pkgSpec}
		if opts.Global {
			args = append(args, "--global")
		}
		return args
	}
}

func resolveJSPackageEntry(pkgDir, pkgName string) (command string, args []string, version string, err error) {
	data, readErr := os.ReadFile(filepath.Join(pkgDir, "package.json"))
	if readErr != nil {
		return "", nil, "", fmt.Errorf("read installed package.json: %w", readErr)
	}
	var doc struct {
		Version string          `json:"version"`
		Main    string          `json:"main"`
		Bin     json.RawMessage `json:"bin"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", nil, "", fmt.Errorf("parse installed package.json: %w", err)
	}

	if len(doc.Bin) > 0 {
		var asString string
		if err := json.Unmarshal(doc.Bin, &asString); err == nil && asString != "" {
			return "node", []string{filepath.Join(pkgDir, asString)}, doc.Version, nil
		}
		var asMap map[string]string
		if err := json.Unmarshal(doc.Bin, &asMap); err == nil {
			for _, v := range asMap {
				if v != "" {
					return "node", []string{filepath.Join(pkgDir, v)}, doc.Version, nil
				}
			}
		}
	}
	if doc.Main != "" {
		return "node", []string{filepath.Join(pkgDir, doc.Main)}, doc.Version, nil
	}
	if fileExists(filepath.Join(pkgDir, "index.js")) {
		return "node", []string{filepath.Join(pkgDir, "index.js")}, doc.Version, nil
	}
	return "", nil, "", fmt.Errorf("no entry point found in installed package %q", pkgName)
}

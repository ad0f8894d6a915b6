package installer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"silexa/mcp-supervisor/internal/runner"
)

// installDependenciesFor runs the appropriate package manager for
// installDir's manifest, used by the git installer once it has detected a
// runtime. Python dependencies go into a venv under runtimeDir; node
// dependencies are installed in place, into installDir/node_modules, and
// runtimeDir is not used for them.
func installDependenciesFor(ctx context.Context, r runner.Runner, kind, managerHint, installDir, runtimeDir string, logger Logger) error {
	switch kind {
	case "node":
		return npmInstall(ctx, r, managerHint, installDir, logger)
	case "python":
		return pipInstallInto(ctx, r, managerHint, installDir, runtimeDir, logger)
	case "go", "rust", "container":
		logger.Log(StageInstalling, LogInfo, fmt.Sprintf("runtime %q requires no dependency install step", kind))
		return nil
	default:
		return fmt.Errorf("unsupported runtime %q", kind)
	}
}

func npmInstall(ctx context.Context, r runner.Runner, manager, dir string, logger Logger) error {
	if manager == "" {
		manager = "npm"
	}
	var args []string
	switch manager {
	case "yarn":
		args = []string{"install", "--production"}
	case "pnpm":
		args = []string{"install", "--prod"}
	default:
		manager = "npm"
		args = []string{"install", "--omit=dev"}
	}
	result, err := r.Run(ctx, manager, args, runner.Options{Dir: dir})
	if err != nil {
		return fmt.Errorf("%s install: %w", manager, err)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("%s install exited %d: %s", manager, result.ExitCode, result.Stderr)
	}
	logger.Log(StageInstalling, LogInfo, manager+" install complete")
	return nil
}

func pipInstallInto(ctx context.Context, r runner.Runner, manager, installDir, runtimeDir string, logger Logger) error {
	venvDir := filepath.Join(runtimeDir, "venv")
	python := "python3"
	if result, err := r.Run(ctx, python, []string{"-m", "venv", venvDir}, runner.Options{}); err != nil || result.ExitCode != 0 {
		if err == nil {
			err = fmt.Errorf("exit %d: %s", result.ExitCode, result.Stderr)
		}
		return fmt.Errorf("create venv: %w", err)
	}
	pip := filepath.Join(venvDir, "bin", "pip")

	var installArgs []string
	if _, statErr := os.Stat(filepath.Join(installDir, "pyproject.toml")); statErr == nil {
		installArgs = []string{"install", "."}
	} else {
		installArgs = []string{"install", "-r", "requirements.txt"}
	}
	result, err := r.Run(ctx, pip, installArgs, runner.Options{Dir: installDir})
	if err != nil {
		return fmt.Errorf("pip install: %w", err)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("pip install exited %d: %s", result.ExitCode, result.Stderr)
	}
	logger.Log(StageInstalling, LogInfo, "virtualenv dependencies installed")
	return nil
}

// resolveEntryPoint applies the runtime-specific entry point convention
// described in spec section 4.7, last paragraph.
func resolveEntryPoint(kind, installDir, runtimeDir string) (command string, args []string, err error) {
	switch kind {
	case "node":
		if entry, ok := detectJSEntry(filepath.Join(installDir, "package.json")); ok {
			return "node", []string{filepath.Join(installDir, entry)}, nil
		}
		for _, candidate := range []string{"index.js", "main.js", "server.js"} {
			if fileExists(filepath.Join(installDir, candidate)) {
				return "node", []string{filepath.Join(installDir, candidate)}, nil
			}
		}
		return "", nil, fmt.Errorf("no JS entry point found (checked package.json, index.js, main.js, server.js)")
	case "python":
		venvPython := filepath.Join(runtimeDir, "venv", "bin", "python")
		for _, candidate := range []string{"main.py", "server.py", "app.py"} {
			if fileExists(filepath.Join(installDir, candidate)) {
				return venvPython, []string{filepath.Join(installDir, candidate)}, nil
			}
		}
		return "", nil, fmt.Errorf("no Python entry point found (checked main.py, server.py, app.py)")
	case "go":
		bin := filepath.Join(runtimeDir, "bin", filepath.Base(installDir))
		if fileExists(bin) {
			return bin, nil, nil
		}
		return "", nil, fmt.Errorf("no built Go binary found at %s", bin)
	case "rust":
		release := filepath.Join(installDir, "target", "release")
		entries, readErr := os.ReadDir(release)
		if readErr == nil {
			for _, e := range entries {
				if !e.IsDir() {
					return filepath.Join(release, e.Name()), nil, nil
				}
			}
		}
		return "", nil, fmt.Errorf("no built Rust binary found under %s", release)
	default:
		return "", nil, fmt.Errorf("unsupported runtime %q", kind)
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

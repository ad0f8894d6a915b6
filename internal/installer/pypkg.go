package installer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"silexa/mcp-supervisor/internal/runner"
)

// PyPkg installs a named package from a PyPI-compatible index (spec
// section 4.7, "Python-package installer").
type PyPkg struct {
	Runner     runner.Runner
	RuntimeDir string
	BinDir     string
	Package    string
	Options    PyPkgOptions
}

func (p PyPkg) Install(ctx context.Context, slug string, logger Logger) (Result, error) {
	python, err := pickPythonExecutable(ctx, p.Runner, p.Options.PythonVersion)
	if err != nil {
		return Result{}, fmt.Errorf("installer(py-pkg): %w", err)
	}
	logger.Log(StageValidation, LogInfo, "using interpreter "+python)
	logger.Progress(StageValidation, 0)

	pipTarget := p.packageSpec()
	if err := validatePyPackageExists(ctx, p.Runner, python, pipTarget, p.Options.IndexURL); err != nil {
		return Result{}, fmt.Errorf("installer(py-pkg): %w", err)
	}
	logger.Progress(StageValidation, 100)

	logger.Log(StageDownloading, LogInfo, "resolving "+pipTarget)
	logger.Progress(StageDownloading, 50)
	if err := os.MkdirAll(p.RuntimeDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("installer(py-pkg): mkdir runtime dir: %w", err)
	}
	logger.Progress(StageDownloading, 100)

	interpreter := python
	if p.Options.venv() {
		venvDir := filepath.Join(p.RuntimeDir, "venv")
		if result, err := p.Runner.Run(ctx, python, []string{"-m", "venv", venvDir}, runner.Options{}); err != nil || result.ExitCode != 0 {
			if err == nil {
				err = fmt.Errorf("exit %d: %s", result.ExitCode, result.Stderr)
			}
			return Result{}, fmt.Errorf("installer(py-pkg): create venv: %w", err)
		}
		interpreter = filepath.Join(venvDir, "bin", "python")
		logger.Log(StageExtracting, LogInfo, "created virtualenv at "+venvDir)
	} else {
		logger.Log(StageExtracting, LogInfo, "venv disabled, installing to interpreter site-packages")
	}
	logger.Progress(StageExtracting, 100)

	pip := filepath.Join(filepath.Dir(interpreter), "pip")
	if !fileExists(pip) {
		pip = interpreter
	}

	logger.Log(StageInstalling, LogInfo, "installing "+pipTarget)
	logger.Progress(StageInstalling, 0)
	args := buildPipInstallArgs(pip, pipTarget, p.Options)
	result, err := p.Runner.Run(ctx, args[0], args[1:], runner.Options{})
	if err != nil {
		return Result{}, fmt.Errorf("installer(py-pkg): pip install: %w", err)
	}
	if result.ExitCode != 0 {
		return Result{}, fmt.Errorf("installer(py-pkg): pip install exited %d: %s", result.ExitCode, result.Stderr)
	}
	logger.Progress(StageInstalling, 100)

	logger.Log(StageConfiguring, LogInfo, "resolving entry point")
	logger.Progress(StageConfiguring, 50)
	command, entryArgs, err := resolvePyEntryPoint(ctx, p.Runner, interpreter, filepath.Dir(interpreter), p.Package)
	if err != nil {
		return Result{}, fmt.Errorf("installer(py-pkg): %w", err)
	}
	logger.Progress(StageConfiguring, 100)

	env := map[string]string{}
	if p.Options.venv() {
		env["PATH"] = filepath.Dir(interpreter) + string(os.PathListSeparator) + os.Getenv("PATH")
		env["VIRTUAL_ENV"] = filepath.Dir(filepath.Dir(interpreter))
	}

	return Result{
		InstallPath:        p.RuntimeDir,
		RuntimePath:        p.RuntimeDir,
		BinPath:            p.BinDir,
		EntryCommand:       command,
		EntryArgs:          entryArgs,
		Environment:        env,
		RuntimeKind:        "python",
		PackageManagerKind: "pip",
		Metadata:           map[string]string{"package": p.Package},
	}, nil
}

func (p PyPkg) packageSpec() string {
	spec := p.Package
	if len(p.Options.Extras) > 0 {
		spec = fmt.Sprintf("%s[%s]", spec, strings.Join(p.Options.Extras, ","))
	}
	return spec
}

// pickPythonExecutable resolves the interpreter matching the requested
// version, falling back to python3 when no version is requested.
func pickPythonExecutable(ctx context.Context, r runner.Runner, version string) (string, error) {
	candidates := []string{"python3"}
	if version != "" {
		candidates = append([]string{"python" + version}, candidates...)
	}
	for _, candidate := range candidates {
		if result, err := r.Run(ctx, candidate, []string{"--version"}, runner.Options{}); err == nil && result.ExitCode == 0 {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no suitable python interpreter found (tried %v)", candidates)
}

func validatePyPackageExists(ctx context.Context, r runner.Runner, python, pkgSpec, indexURL string) error {
	args := []string{"-m", "pip", "index", "versions", stripExtras(pkgSpec)}
	if indexURL != "" {
		args = append(args, "--index-url", indexURL)
	}
	result, err := r.Run(ctx, python, args, runner.Options{})
	if err != nil {
		return fmt.Errorf("validate package %q: %w", pkgSpec, err)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("package %q not found on index: %s", pkgSpec, result.Stderr)
	}
	return nil
}

func buildPipInstallArgs(pip, pkgSpec string, opts PyPkgOptions) []string {
	args := []string{pip, "install", pkgSpec}
	if opts.IndexURL != "" {
		args = append(args, "--index-url", opts.IndexURL)
	}
	if opts.PreRelease {
		args = append(args, "--pre")
	}
	return args
}

func stripExtras(spec string) string {
	if i := strings.Index(spec, "["); i >= 0 {
		return spec[:i]
	}
	return spec
}

// resolvePyEntryPoint prefers an installed console-script sharing the
// package's distribution name, then falls back to `python -m <package>`
// for packages that are importable but declare no script.
func resolvePyEntryPoint(ctx context.Context, r runner.Runner, interpreter, scriptsDir, pkgName string) (command string, args []string, err error) {
	scriptName := strings.ReplaceAll(pkgName, "_", "-")
	scriptPath := filepath.Join(scriptsDir, scriptName)
	if fileExists(scriptPath) {
		return scriptPath, nil, nil
	}

	moduleName := strings.ReplaceAll(pkgName, "-", "_")
	result, err := r.Run(ctx, interpreter, []string{"-c", "import " + moduleName}, runner.Options{})
	if err == nil && result.ExitCode == 0 {
		return interpreter, []string{"-m", moduleName}, nil
	}

	return "", nil, fmt.Errorf("no console script %q and module %q is not importable", scriptName, moduleName)
}

package installer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"silexa/mcp-supervisor/internal/runner"
)

// Git materializes a server from a git remote (spec section 4.7,
// "Git-source installer").
type Git struct {
	Runner     runner.Runner
	InstallDir string
	RuntimeDir string
	BinDir     string
	URI        string
	Options    GitOptions
}

// Install clones the remote, detects the runtime, installs dependencies
// (python into a venv under RuntimeDir, node into InstallDir/node_modules),
// optionally runs post-install commands, and detects the entry point.
func (g Git) Install(ctx context.Context, slug string, logger Logger) (Result, error) {
	logger.Log(StageValidation, LogInfo, "checking remote reachability")
	logger.Progress(StageValidation, 0)
	if _, err := g.Runner.Run(ctx, "git", []string{"ls-remote", credentialedURL(g.URI, g.Options)}, runner.Options{}); err != nil {
		return Result{}, fmt.Errorf("installer(git): remote unreachable: %w", err)
	}
	logger.Progress(StageValidation, 100)

	logger.Log(StageDownloading, LogInfo, "cloning "+redactURI(g.URI))
	logger.Progress(StageDownloading, 0)
	args := []string{"clone"}
	if g.Options.Depth > 0 {
		args = append(args, "--depth", fmt.Sprint(g.Options.Depth))
	}
	if g.Options.RecurseSubmods {
		args = append(args, "--recurse-submodules")
	}
	if g.Options.Branch != "" {
		args = append(args, "--branch", g.Options.Branch)
	} else if g.Options.Tag != "" {
		args = append(args, "--branch", g.Options.Tag)
	}
	args = append(args, credentialedURL(g.URI, g.Options), g.InstallDir)

	var extraEnv []string
	if g.Options.SSHKeyEnvVar != "" {
		extraEnv = append(extraEnv, "GIT_SSH_COMMAND=ssh -i "+os.Getenv(g.Options.SSHKeyEnvVar)+" -o StrictHostKeyChecking=accept-new")
	}
	if result, err := g.Runner.Run(ctx, "git", args, runner.Options{ExtraEnv: extraEnv}); err != nil || result.ExitCode != 0 {
		if err == nil {
			err = fmt.Errorf("git clone exited %d: %s", result.ExitCode, result.Stderr)
		}
		return Result{}, fmt.Errorf("installer(git): clone failed: %w", err)
	}
	logger.Progress(StageDownloading, 100)

	logger.Log(StageExtracting, LogInfo, "resolved working tree")
	logger.Progress(StageExtracting, 100)

	kind, managerHint := detectRuntime(g.InstallDir)
	if kind == "" {
		return Result{}, fmt.Errorf("installer(git): could not determine runtime for %s", redactURI(g.URI))
	}
	logger.Log(StageInstalling, LogInfo, fmt.Sprintf("detected runtime=%s manager=%s", kind, managerHint))
	logger.Progress(StageInstalling, 0)

	if err := os.MkdirAll(g.RuntimeDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("installer(git): mkdir runtime dir: %w", err)
	}

	if err := installDependenciesFor(ctx, g.Runner, kind, managerHint, g.InstallDir, g.RuntimeDir, logger); err != nil {
		return Result{}, fmt.Errorf("installer(git): %w", err)
	}
	logger.Progress(StageInstalling, 100)

	logger.Log(StageConfiguring, LogInfo, "configuration complete")
	logger.Progress(StageConfiguring, 100)

	for _, cmd := range g.Options.PostInstall {
		logger.Log(StagePostInstall, LogInfo, "running post-install: "+cmd)
		result, err := g.Runner.Run(ctx, "sh", []string{"-c", cmd}, runner.Options{Dir: g.InstallDir})
		if err != nil || result.ExitCode != 0 {
			if err == nil {
				err = fmt.Errorf("exit %d: %s", result.ExitCode, result.Stderr)
			}
			return Result{}, fmt.Errorf("installer(git): post-install command %q failed: %w", cmd, err)
		}
	}
	logger.Progress(StagePostInstall, 100)

	command, entryArgs, err := resolveEntryPoint(kind, g.InstallDir, g.RuntimeDir)
	if err != nil {
		return Result{}, fmt.Errorf("installer(git): %w", err)
	}

	env := map[string]string{}
	if kind == "node" {
		env["PATH"] = filepath.Join(g.RuntimeDir, "node_modules", ".bin") + string(os.PathListSeparator) + os.Getenv("PATH")
	}

	return Result{
		InstallPath:        g.InstallDir,
		RuntimePath:        g.RuntimeDir,
		BinPath:            g.BinDir,
		EntryCommand:       command,
		EntryArgs:          entryArgs,
		Environment:        env,
		RuntimeKind:        kind,
		PackageManagerKind: managerHint,
		Metadata:           map[string]string{"source": g.URI},
	}, nil
}

// credentialedURL embeds a token or username:password into the remote URL.
// These values never appear in logs; only redactURI's output is logged.
func credentialedURL(uri string, opts GitOptions) string {
	if opts.Token == "" && opts.Username == "" {
		return uri
	}
	const scheme = "https://"
	if !strings.HasPrefix(uri, scheme) {
		return uri
	}
	rest := strings.TrimPrefix(uri, scheme)
	if opts.Token != "" {
		return scheme + opts.Token + "@" + rest
	}
	return scheme + opts.Username + ":" + opts.Password + "@" + rest
}

func redactURI(uri string) string {
	if i := strings.Index(uri, "@"); i >= 0 {
		schemeEnd := strings.Index(uri, "://")
		if schemeEnd >= 0 && schemeEnd+3 < i {
			return uri[:schemeEnd+3] + "***@" + uri[i+1:]
		}
	}
	return uri
}

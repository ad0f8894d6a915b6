package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"silexa/mcp-supervisor/internal/installer"
	"silexa/mcp-supervisor/internal/jobengine"
	"silexa/mcp-supervisor/internal/registry"
	"silexa/mcp-supervisor/internal/runner"
)

var (
	installSourceKind string
	installSlug       string
	installRuntimeHint string
	installManagerHint string
	installBranch     string
	installPackage    string

	installCmd = &cobra.Command{
		Use:   "install",
		Short: "Install and register MCP servers",
	}

	installValidateCmd = &cobra.Command{
		Use:   "validate [uri]",
		Short: "Stateless preflight check for a source, mirroring the chosen installer's first step",
		Args:  cobra.ExactArgs(1),
		RunE:  runInstallValidate,
	}

	installStartCmd = &cobra.Command{
		Use:   "start [uri]",
		Short: "Start an installation job and wait for it to finish",
		Args:  cobra.ExactArgs(1),
		RunE:  runInstallStart,
	}

	installListCmd = &cobra.Command{
		Use:   "list",
		Short: "List known installation jobs",
		RunE:  runInstallList,
	}
)

func init() {
	installCmd.PersistentFlags().StringVar(&installSourceKind, "source-kind", "git", "git|js-pkg|py-pkg|container-image|container-compose")
	installCmd.PersistentFlags().StringVar(&installSlug, "slug", "", "server slug (derived from the URI when empty)")
	installCmd.PersistentFlags().StringVar(&installRuntimeHint, "runtime", "", "runtime hint (accepted but currently ignored; the runtime is detected)")
	installCmd.PersistentFlags().StringVar(&installManagerHint, "manager", "", "package manager hint override (npm|yarn|pnpm)")
	installStartCmd.Flags().StringVar(&installBranch, "branch", "", "git branch to check out (git sources only)")
	installStartCmd.Flags().StringVar(&installPackage, "package", "", "package name override (js-pkg/py-pkg sources; defaults to the uri)")

	installCmd.AddCommand(installValidateCmd)
	installCmd.AddCommand(installStartCmd)
	installCmd.AddCommand(installListCmd)
}

func runInstallValidate(cmd *cobra.Command, args []string) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()

	result := installer.Validate(cmd.Context(), runner.Exec{}, installer.ValidateRequest{
		SourceKind: registry.SourceKind(installSourceKind),
		URI:        args[0],
	})
	fmt.Printf("ok=%v suggestedSlug=%s runtimeHint=%s managerHint=%s\n",
		result.OK, result.SuggestedSlug, result.RuntimeHint, result.ManagerHint)
	for _, p := range result.Problems {
		fmt.Printf("  problem: %s\n", p)
	}
	return nil
}

func runInstallStart(cmd *cobra.Command, args []string) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()

	uri := args[0]
	slug := installSlug
	if slug == "" {
		slug = installer.Validate(cmd.Context(), runner.Exec{}, installer.ValidateRequest{
			SourceKind: registry.SourceKind(installSourceKind),
			URI:        uri,
		}).SuggestedSlug
	}

	inst, err := buildInstaller(a, registry.SourceKind(installSourceKind), uri, slug)
	if err != nil {
		return err
	}

	id := a.jobs.Create(slug, registry.SourceKind(installSourceKind), uri, inst)
	ctx := cmd.Context()
	if err := a.jobs.Start(ctx, id); err != nil {
		return err
	}

	for {
		snap, err := a.jobs.Get(id)
		if err != nil {
			return err
		}
		fmt.Printf("\r%-12s %5.1f%%", snap.Stage, snap.OverallProgress)
		switch snap.Status {
		case jobengine.StatusCompleted:
			fmt.Println()
		case jobengine.StatusFailed, jobengine.StatusCancelled:
			fmt.Println()
			return fmt.Errorf("install: job %s ended in %s: %s", id, snap.Status, snap.Err)
		default:
			time.Sleep(200 * time.Millisecond)
			continue
		}
		break
	}

	entry, err := a.jobs.Finalize(id)
	if err != nil {
		return err
	}
	fmt.Printf("registered %q (command=%s)\n", entry.Slug, entry.Entry.Command)
	return nil
}

func runInstallList(cmd *cobra.Command, args []string) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()

	for _, snap := range a.jobs.List(nil) {
		fmt.Printf("%s  %-10s %-12s %5.1f%%\n", snap.ID, snap.Status, snap.Stage, snap.OverallProgress)
	}
	return nil
}

func buildInstaller(a *app, kind registry.SourceKind, uri, slug string) (installer.Installer, error) {
	l := a.layout
	switch kind {
	case registry.SourceGit:
		return installer.Git{
			Runner:     runner.Exec{},
			InstallDir: l.InstallDir(slug),
			RuntimeDir: l.RuntimeDir(slug),
			BinDir:     l.BinDir(slug),
			URI:        uri,
			Options:    installer.GitOptions{Branch: installBranch},
		}, nil
	case registry.SourceJSPackage:
		pkg := installPackage
		if pkg == "" {
			pkg = uri
		}
		return installer.JSPkg{
			Runner:     runner.Exec{},
			RuntimeDir: l.RuntimeDir(slug),
			BinDir:     l.BinDir(slug),
			Package:    pkg,
			Options:    installer.JSPkgOptions{PackageManagerHint: installManagerHint},
		}, nil
	case registry.SourcePyPackage:
		pkg := installPackage
		if pkg == "" {
			pkg = uri
		}
		return installer.PyPkg{
			Runner:     runner.Exec{},
			RuntimeDir: l.RuntimeDir(slug),
			BinDir:     l.BinDir(slug),
			Package:    pkg,
		}, nil
	default:
		return nil, fmt.Errorf("install: unsupported source kind %q for cmdline install (container sources are validated only)", kind)
	}
}

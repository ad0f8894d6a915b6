package installer

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"

	"silexa/mcp-supervisor/internal/containercheck"
	"silexa/mcp-supervisor/internal/registry"
	"silexa/mcp-supervisor/internal/runner"
)

// ValidateRequest is the input to the stateless install.validate preflight
// (spec section 6).
type ValidateRequest struct {
	SourceKind registry.SourceKind
	URI        string
}

// ValidateResult mirrors the shape described in spec section 6 for
// install.validate's return value.
type ValidateResult struct {
	OK             bool
	Problems       []string
	SuggestedSlug  string
	RuntimeHint    string
	ManagerHint    string
}

var slugUnsafe = regexp.MustCompile(`[^a-z0-9]+`)

// Validate mirrors the first steps of whichever installer sourceKind
// selects, without touching disk or the registry: it checks reachability
// for git, registry presence for js-pkg/py-pkg, and reference resolution
// for container sources.
func Validate(ctx context.Context, r runner.Runner, req ValidateRequest) ValidateResult {
	result := ValidateResult{SuggestedSlug: suggestSlug(req.URI)}

	switch req.SourceKind {
	case registry.SourceGit:
		if _, err := r.Run(ctx, "git", []string{"ls-remote", req.URI}, runner.Options{}); err != nil {
			result.Problems = append(result.Problems, fmt.Sprintf("remote unreachable: %v", err))
		}
	case registry.SourceJSPackage:
		manager := pickJSManager(ctx, r, "")
		result.ManagerHint = manager
		result.RuntimeHint = "node"
		if err := validateJSPackageExists(ctx, r, manager, req.URI, ""); err != nil {
			result.Problems = append(result.Problems, err.Error())
		}
	case registry.SourcePyPackage:
		python, err := pickPythonExecutable(ctx, r, "")
		if err != nil {
			result.Problems = append(result.Problems, err.Error())
			break
		}
		result.ManagerHint = "pip"
		result.RuntimeHint = "python"
		if err := validatePyPackageExists(ctx, r, python, req.URI, ""); err != nil {
			result.Problems = append(result.Problems, err.Error())
		}
	case registry.SourceContainerImage:
		result.RuntimeHint = "container"
		if err := containercheck.CheckImage(req.URI); err != nil {
			result.Problems = append(result.Problems, err.Error())
		}
	case registry.SourceContainerCompose:
		result.RuntimeHint = "container"
		if err := containercheck.CheckCompose(req.URI); err != nil {
			result.Problems = append(result.Problems, err.Error())
		}
	default:
		result.Problems = append(result.Problems, fmt.Sprintf("unknown source kind %q", req.SourceKind))
	}

	result.OK = len(result.Problems) == 0
	return result
}

// suggestSlug derives a registry-safe slug from a URI or package name: the
// final path segment, lowercased, with anything outside [a-z0-9] collapsed
// to a single dash.
func suggestSlug(uri string) string {
	trimmed := strings.TrimSuffix(uri, ".git")
	base := path.Base(trimmed)
	lowered := strings.ToLower(base)
	slug := slugUnsafe.ReplaceAllString(lowered, "-")
	return strings.Trim(slug, "-")
}

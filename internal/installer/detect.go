package installer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// detectRuntime inspects dir for marker files and returns the runtime kind
// and, for JS/Python, a hint about which package manager owns the lockfile.
// It follows the convention enumerated in spec section 4.7.
func detectRuntime(dir string) (kind, managerHint string) {
	exists := func(name string) bool {
		_, err := os.Stat(filepath.Join(dir, name))
		return err == nil
	}

	switch {
	case exists("package.json"):
		switch {
		case exists("pnpm-lock.yaml"):
			return "node", "pnpm"
		case exists("yarn.lock"):
			return "node", "yarn"
		default:
			return "node", "npm"
		}
	case exists("pyproject.toml"):
		if pyprojectDeclaresPoetry(filepath.Join(dir, "pyproject.toml")) {
			return "python", "poetry"
		}
		return "python", "pip"
	case exists("requirements.txt"), exists("setup.py"):
		return "python", "pip"
	case exists("Pipfile"):
		return "python", "pipenv"
	case exists("go.mod"):
		return "go", ""
	case exists("Cargo.toml"):
		return "rust", ""
	case exists("Dockerfile"):
		return "container", ""
	default:
		return "", ""
	}
}

func pyprojectDeclaresPoetry(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	// A dependency-free substring check is sufficient here: we only need to
	// distinguish "this project uses poetry's tool.poetry table" from a
	// bare PEP 621 pyproject.toml, and pulling in a TOML parser for one
	// marker string is not worth it.
	return strings.Contains(string(data), "[tool.poetry]")
}

// detectJSEntry reads a package.json and returns the declared entry point:
// a binary stanza first, then main, then nothing.
func detectJSEntry(packageJSONPath string) (command string, ok bool) {
	data, err := os.ReadFile(packageJSONPath)
	if err != nil {
		return "", false
	}
	var doc struct {
		Main string          `json:"main"`
		Bin  json.RawMessage `json:"bin"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", false
	}
	if len(doc.Bin) > 0 {
		var asString string
		if err := json.Unmarshal(doc.Bin, &asString); err == nil && asString != "" {
			return asString, true
		}
		var asMap map[string]string
		if err := json.Unmarshal(doc.Bin, &asMap); err == nil {
			for _, v := range asMap {
				if v != "" {
					return v, true
				}
			}
		}
	}
	if doc.Main != "" {
		return doc.Main, true
	}
	return "", false
}

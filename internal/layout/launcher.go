package layout

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// WriteLauncher generates the executable shell launcher at bin/<slug>. It
// exports the recorded environment, then execs command with args,
// forwarding any trailing arguments the caller passes to the script itself.
//
// The launcher is always created, even when command is empty — in that
// case it prints an error and exits non-zero rather than silently doing
// nothing, so a misconfigured entry fails loudly at start time.
func (l Layout) WriteLauncher(slug, command string, args []string, env map[string]string) error {
	if err := os.MkdirAll(l.BinDir(slug), 0o755); err != nil {
		return fmt.Errorf("layout: mkdir bin dir for %s: %w", slug, err)
	}

	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	b.WriteString("# generated launcher for " + slug + "; do not edit by hand\n")
	b.WriteString("set -e\n")

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(fmt.Sprintf("export %s=%s\n", shellIdent(k), shellQuote(env[k])))
	}

	if strings.TrimSpace(command) == "" {
		b.WriteString(fmt.Sprintf("echo %s 1>&2\n", shellQuote(fmt.Sprintf("%s: no entry command configured", slug))))
		b.WriteString("exit 1\n")
	} else {
		b.WriteString("exec " + shellQuote(command))
		for _, a := range args {
			b.WriteString(" " + shellQuote(a))
		}
		b.WriteString(` "$@"` + "\n")
	}

	path := l.LauncherPath(slug)
	if err := os.WriteFile(path, []byte(b.String()), 0o755); err != nil {
		return fmt.Errorf("layout: write launcher for %s: %w", slug, err)
	}
	return nil
}

// shellQuote wraps s in single quotes, escaping any embedded single quote
// the POSIX-shell way: close the quote, emit an escaped quote, reopen.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// shellIdent strips characters that are not valid in a POSIX shell
// identifier, since env keys are operator-supplied and get interpolated
// into the export statement unquoted.
func shellIdent(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}

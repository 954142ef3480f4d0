// Package linter trims captured device configuration to the interesting
// region (spec.md §4.5). Trimming is purely textual — no semantic
// parsing of the configuration is attempted.
package linter

import (
	"os"
	"regexp"
	"strings"

	"github.com/jeremyschulman/netcfgbu-go/internal/config"
)

// Lint trims content per spec: if ConfigStartsAfter matches (as a
// single-line regex anchored at column 0), everything up to and
// including that line plus its trailing newline is dropped. If
// ConfigEndsAt is set, the content is truncated at the last occurrence
// of a newline followed by that literal. Idempotent: Lint(Lint(x)) ==
// Lint(x).
func Lint(content string, spec config.LinterSpec) string {
	start := 0
	end := len(content)

	if spec.ConfigStartsAfter != "" {
		if re, err := regexp.Compile("(?m)^" + spec.ConfigStartsAfter + ".*$"); err == nil {
			if loc := re.FindStringIndex(content); loc != nil {
				start = loc[1] + 1
				if start > len(content) {
					start = len(content)
				}
			}
		}
	}

	if spec.ConfigEndsAt != "" {
		if idx := strings.LastIndex(content, "\n"+spec.ConfigEndsAt); idx >= 0 {
			end = idx
		}
	}

	if start > end {
		start = end
	}

	return content[start:end]
}

// LintFile reads path, lints it against spec, and — only when the
// content actually changed — renames the original to "<name>.orig"
// before writing the trimmed content back.
func LintFile(path string, spec config.LinterSpec) error {
	orig, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	trimmed := Lint(string(orig), spec)
	if trimmed == string(orig) {
		return nil
	}

	if err := os.Rename(path, path+".orig"); err != nil {
		return err
	}

	return os.WriteFile(path, []byte(trimmed), 0o644)
}

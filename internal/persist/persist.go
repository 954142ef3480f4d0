// Package persist writes a captured configuration to the configs
// directory (spec.md §4.6). Versioning is delegated to the Git
// post-processor; this package only ever overwrites the latest
// capture.
package persist

import (
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Save writes content to <configsDir>/<name>.cfg. Byte streams are
// decoded as UTF-8 with invalid sequences replaced, \r is stripped,
// and a newline is always appended, even if content already ends in
// one. The configs directory is created if absent. Returns the path
// written.
func Save(configsDir, name string, content []byte) (string, error) {
	if err := os.MkdirAll(configsDir, 0o755); err != nil {
		return "", err
	}

	text := strings.ToValidUTF8(string(content), string(utf8.RuneError))
	text = strings.ReplaceAll(text, "\r", "")
	text += "\n"

	path := filepath.Join(configsDir, name+".cfg")

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, err := f.WriteString(text); err != nil {
		return "", err
	}

	return path, nil
}

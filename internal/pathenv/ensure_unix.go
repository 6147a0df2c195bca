//go:build !windows

package pathenv

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// profileNames are the shell profiles considered for the PATH entry. Only
// profiles that already exist are touched; none are created.
var profileNames = []string{".profile", ".bashrc", ".zshrc"}

// userHomeDir is a package variable so tests can point Ensure at a scratch
// home directory.
var userHomeDir = os.UserHomeDir

// Ensure appends the install directory to PATH in every existing shell
// profile that does not already carry it, and to the current process
// environment so binaries are reachable without a new shell.
func Ensure(installDir string) error {
	ensureProcessPath(installDir)

	home, err := userHomeDir()
	if err != nil {
		return &MutationError{Op: "resolve home directory", Err: err}
	}

	var firstErr *MutationError
	record := func(op string, err error) {
		if firstErr == nil {
			firstErr = &MutationError{Op: op, Err: err}
		}
	}

	for _, name := range profileNames {
		path := filepath.Join(home, name)
		data, err := os.ReadFile(path) // #nosec G304 -- fixed profile names under $HOME
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			record("read "+name, err)
			continue
		}
		if hasProfileEntry(string(data), installDir) {
			continue
		}
		if err := appendProfileEntry(path, string(data), installDir); err != nil {
			record("append to "+name, err)
		}
	}

	if firstErr != nil {
		return firstErr
	}
	return nil
}

func appendProfileEntry(path, content, installDir string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644) // #nosec G304 -- fixed profile names under $HOME
	if err != nil {
		return err
	}
	entry := profileEntry(installDir) + "\n"
	if content != "" && !strings.HasSuffix(content, "\n") {
		entry = "\n" + entry
	}
	if _, err := f.WriteString(entry); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func ensureProcessPath(installDir string) {
	cur := os.Getenv("PATH")
	for _, elem := range strings.Split(cur, string(os.PathListSeparator)) {
		if elem == installDir {
			return
		}
	}
	_ = os.Setenv("PATH", cur+string(os.PathListSeparator)+installDir)
}

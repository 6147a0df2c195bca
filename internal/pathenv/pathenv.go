// Package pathenv makes the install directory reachable on PATH: shell
// profiles on unix, the per-user Environment registry value on windows. It
// only ever appends; existing entries are never removed or reordered.
package pathenv

import (
	"fmt"
	"strings"
)

// MutationError is a failed PATH update. Callers report it as a warning; a
// missing PATH entry never blocks an otherwise successful install.
type MutationError struct {
	Op  string
	Err error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("update PATH: %s: %v", e.Op, e.Err)
}

func (e *MutationError) Unwrap() error { return e.Err }

// profileEntry is the line appended to shell profiles.
func profileEntry(dir string) string {
	return fmt.Sprintf(`export PATH="$PATH:%s"`, dir)
}

// hasProfileEntry reports whether a profile already puts dir on PATH. It
// tolerates the variants found in hand-edited profiles: with or without
// export, double or single quotes or none, $PATH leading or trailing.
func hasProfileEntry(content, dir string) bool {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "export ")
		if !strings.HasPrefix(line, "PATH=") {
			continue
		}
		value := strings.TrimPrefix(line, "PATH=")
		value = strings.Trim(value, `"'`)
		for _, elem := range strings.Split(value, ":") {
			if elem == dir {
				return true
			}
		}
	}
	return false
}

// windowsPathContains matches dir against a semicolon-separated Path value,
// ignoring case and trailing backslashes.
func windowsPathContains(path, dir string) bool {
	want := normalizePathElem(dir)
	for _, elem := range strings.Split(path, ";") {
		if normalizePathElem(elem) == want {
			return true
		}
	}
	return false
}

func normalizePathElem(elem string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(elem), `\`))
}

func appendPathElem(path, dir string) string {
	if strings.TrimSpace(path) == "" {
		return dir
	}
	return strings.TrimRight(path, ";") + ";" + dir
}

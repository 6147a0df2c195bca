//go:build windows

package pathenv

import (
	"errors"
	"os"

	"golang.org/x/sys/windows/registry"
)

// Ensure appends the install directory to the per-user Path registry value
// and to the current process environment. The machine-wide Path is never
// touched.
func Ensure(installDir string) error {
	cur := os.Getenv("PATH")
	if !windowsPathContains(cur, installDir) {
		_ = os.Setenv("PATH", appendPathElem(cur, installDir))
	}

	key, err := registry.OpenKey(registry.CURRENT_USER, "Environment", registry.QUERY_VALUE|registry.SET_VALUE)
	if err != nil {
		return &MutationError{Op: "open user Environment key", Err: err}
	}
	defer key.Close()

	val, _, err := key.GetStringValue("Path")
	if err != nil && !errors.Is(err, registry.ErrNotExist) {
		return &MutationError{Op: "read user Path value", Err: err}
	}
	if windowsPathContains(val, installDir) {
		return nil
	}
	if err := key.SetStringValue("Path", appendPathElem(val, installDir)); err != nil {
		return &MutationError{Op: "write user Path value", Err: err}
	}
	return nil
}

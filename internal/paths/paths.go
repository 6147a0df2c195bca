// Package paths fixes the OS-conventional install location and the marker
// file recording which release tag is installed there.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// tagMarkerName sits inside the install directory next to the binaries.
const tagMarkerName = ".release-tag"

// InstallDir returns the fixed install directory for the platform. The
// location is not configurable; a predictable path is what lets the service
// registration, PATH entry and uninstall agree with each other.
func InstallDir(goos string) (string, error) {
	switch goos {
	case "linux":
		return "/opt/beeper-automations", nil
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		return filepath.Join(home, "Library", "Application Support", "BeeperAutomations", "bin"), nil
	case "windows":
		base := os.Getenv("LOCALAPPDATA")
		if base == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("resolve home directory: %w", err)
			}
			base = filepath.Join(home, "AppData", "Local")
		}
		return filepath.Join(base, "BeeperAutomations", "bin"), nil
	default:
		return "", fmt.Errorf("no install directory convention for %s", goos)
	}
}

// TagMarker is the path of the installed-release marker inside installDir.
func TagMarker(installDir string) string {
	return filepath.Join(installDir, tagMarkerName)
}

// RecordedTag reads the marker left by the previous successful install.
// The second return is false when no valid marker exists.
func RecordedTag(installDir string) (string, bool) {
	data, err := os.ReadFile(TagMarker(installDir)) // #nosec G304 -- fixed marker name inside installDir
	if err != nil {
		return "", false
	}
	tag := strings.TrimSpace(string(data))
	if tag == "" {
		return "", false
	}
	return tag, true
}

// RecordTag writes the marker after a successful install. The marker is
// informational: a failure here must not fail the install.
func RecordTag(installDir, tag string) error {
	return os.WriteFile(TagMarker(installDir), []byte(tag+"\n"), 0o644)
}

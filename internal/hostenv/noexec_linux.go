//go:build linux

package hostenv

import "os"

// ExecAllowed reports whether binaries placed in dir can be executed, as far
// as the mount table shows. Any read or parse trouble counts as allowed;
// this is a preflight warning, not a gate.
func ExecAllowed(dir string) bool {
	if dir == "" {
		return true
	}

	// mountinfo is the richer table and covers overlay setups.
	if data, err := os.ReadFile("/proc/self/mountinfo"); err == nil {
		if mounts := parseMountinfo(string(data)); len(mounts) > 0 {
			return !noexecAt(dir, mounts)
		}
	}

	data, err := os.ReadFile("/proc/mounts")
	if err != nil {
		return true
	}
	mounts := parseProcMounts(string(data))
	if len(mounts) == 0 {
		return true
	}
	return !noexecAt(dir, mounts)
}

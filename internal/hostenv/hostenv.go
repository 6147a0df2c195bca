// Package hostenv preflights the install directory against host quirks that
// would make a freshly copied binary unrunnable, currently mounts flagged
// noexec on linux. Findings are advisory; the install itself proceeds.
package hostenv

import (
	"path/filepath"
	"strings"
)

// mount is one table entry, reduced to what the noexec check needs.
type mount struct {
	point string
	flags map[string]bool
}

func (m mount) noexec() bool { return m.flags["noexec"] }

func parseMountFlags(raw string) map[string]bool {
	flags := make(map[string]bool)
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			flags[part] = true
		}
	}
	return flags
}

// unescapeMountPoint reverses the octal escapes procfs applies to spaces and
// other separators in mount points.
func unescapeMountPoint(value string) string {
	return strings.NewReplacer(
		`\040`, " ",
		`\011`, "\t",
		`\012`, "\n",
		`\134`, `\`,
	).Replace(value)
}

// parseMountinfo reads /proc/self/mountinfo lines:
// id parent major:minor root mountpoint options ... - fstype source superopts
// Flags can appear in both the per-mount options and the super options.
func parseMountinfo(content string) []mount {
	var mounts []mount
	for _, line := range strings.Split(content, "\n") {
		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) < 6 {
			continue
		}
		sep := -1
		for i, f := range fields {
			if f == "-" {
				sep = i
				break
			}
		}
		if sep < 0 {
			continue
		}

		m := mount{
			point: unescapeMountPoint(fields[4]),
			flags: parseMountFlags(fields[5]),
		}
		if sep+3 < len(fields) {
			for flag := range parseMountFlags(fields[sep+3]) {
				m.flags[flag] = true
			}
		}
		mounts = append(mounts, m)
	}
	return mounts
}

// parseProcMounts reads the older /proc/mounts format:
// source mountpoint fstype options dump pass
func parseProcMounts(content string) []mount {
	var mounts []mount
	for _, line := range strings.Split(content, "\n") {
		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) < 4 {
			continue
		}
		mounts = append(mounts, mount{
			point: unescapeMountPoint(fields[1]),
			flags: parseMountFlags(fields[3]),
		})
	}
	return mounts
}

// noexecAt reports whether the mount governing dir carries noexec. The
// governing mount is the longest mount point that prefixes dir.
func noexecAt(dir string, mounts []mount) bool {
	dir = filepath.ToSlash(filepath.Clean(dir))
	if dir == "" || dir == "." {
		return false
	}

	best := -1
	found := false
	for _, m := range mounts {
		point := filepath.ToSlash(filepath.Clean(m.point))
		if point == "" || point == "." || !underMount(dir, point) {
			continue
		}
		if len(point) > best {
			best = len(point)
			found = m.noexec()
		}
	}
	return found
}

func underMount(dir, point string) bool {
	if point == "/" {
		return strings.HasPrefix(dir, "/")
	}
	return dir == point || strings.HasPrefix(dir, point+"/")
}

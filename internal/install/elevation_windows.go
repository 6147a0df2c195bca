//go:build windows

package install

import "golang.org/x/sys/windows"

// processElevated reports whether the current process token carries the
// Administrators group.
func processElevated() bool {
	sid, err := windows.CreateWellKnownSid(windows.WinBuiltinAdministratorsSid)
	if err != nil {
		return false
	}
	member, err := windows.Token(0).IsMember(sid)
	return err == nil && member
}

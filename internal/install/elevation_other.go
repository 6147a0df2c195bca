//go:build !windows

package install

func processElevated() bool { return false }

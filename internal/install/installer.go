// Package install replaces the binaries in the install directory with the
// staged ones, stopping the supervised service first and rolling the
// directory back when a replacement fails partway.
package install

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/beeper-automations/installer/internal/fetch"
	"github.com/beeper-automations/installer/internal/platform"
	"github.com/beeper-automations/installer/internal/svc"
)

// backupSuffix marks the previous binary kept next to its replacement until
// the whole set has been swapped.
const backupSuffix = ".old"

// stopSettle is how long the service gets to release its binaries after a
// successful stop. Windows in particular keeps executables locked briefly.
const stopSettle = 2 * time.Second

// CopyError is a failed binary replacement. By the time it is returned the
// install directory has been rolled back to its previous contents.
type CopyError struct {
	Name string
	Err  error
}

func (e *CopyError) Error() string {
	return fmt.Sprintf("install %s: %v", e.Name, e.Err)
}

func (e *CopyError) Unwrap() error { return e.Err }

// PrivilegeError means the install directory cannot be created or written
// with the current privileges and no escalation path succeeded.
type PrivilegeError struct {
	Dir  string
	Hint string
	Err  error
}

func (e *PrivilegeError) Error() string {
	return fmt.Sprintf("insufficient privileges for %s: %v (%s)", e.Dir, e.Err, e.Hint)
}

func (e *PrivilegeError) Unwrap() error { return e.Err }

// sudoCommand escalates a single command on unix platforms. A package
// variable so tests can substitute a recorder instead of invoking sudo.
var sudoCommand = runSudo

func runSudo(args ...string) error {
	cmd := exec.Command("sudo", args...)
	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined
	if err := cmd.Run(); err != nil {
		out := strings.TrimSpace(combined.String())
		if out == "" {
			return fmt.Errorf("sudo %s: %w", strings.Join(args, " "), err)
		}
		return fmt.Errorf("sudo %s: %s", strings.Join(args, " "), out)
	}
	return nil
}

// Installer swaps staged binaries into the install directory.
type Installer struct {
	target  platform.Target
	backend svc.Backend
	log     logrus.FieldLogger
	settle  time.Duration
}

func New(target platform.Target, backend svc.Backend, log logrus.FieldLogger) *Installer {
	return &Installer{target: target, backend: backend, log: log, settle: stopSettle}
}

// Install stops the service when it is running, replaces every staged
// artifact in installDir, and returns the final path per artifact kind.
//
// A stop failure is a warning: the file swap is attempted anyway. A copy
// failure rolls back every binary already swapped and, when the service was
// running before, restarts it so a failed update leaves the previous
// installation working.
func (ins *Installer) Install(staging *fetch.Staging, installDir string, rec svc.Record) (map[string]string, error) {
	if rec.State == svc.StateRunning {
		if err := ins.backend.Stop(); err != nil {
			ins.log.WithError(err).Warn("could not stop service before install, attempting file swap anyway")
		} else {
			time.Sleep(ins.settle)
		}
	}

	if err := ins.ensureInstallDir(installDir); err != nil {
		return nil, err
	}

	installed, err := ins.replaceAll(staging, installDir)
	if err != nil {
		if rec.WasRunning {
			if startErr := ins.backend.Start(); startErr != nil {
				ins.log.WithError(startErr).Warn("could not restart service after rolled-back install")
			}
		}
		return nil, err
	}
	return installed, nil
}

// ensureInstallDir creates the install directory, escalating with sudo on
// unix platforms when plain creation is denied.
func (ins *Installer) ensureInstallDir(dir string) error {
	// #nosec G301 -- install directory is a fixed per-platform location
	err := os.MkdirAll(dir, 0o755)
	if err == nil {
		return nil
	}
	if !errors.Is(err, os.ErrPermission) {
		return fmt.Errorf("create install directory %s: %w", dir, err)
	}

	if ins.target.OS == "windows" {
		hint := "re-run from an elevated prompt"
		if processElevated() {
			hint = "the install location is not writable even when elevated"
		}
		return &PrivilegeError{Dir: dir, Hint: hint, Err: err}
	}

	ins.log.WithField("dir", dir).Info("install directory requires elevation, retrying with sudo")
	if sudoErr := sudoCommand("mkdir", "-p", dir); sudoErr != nil {
		return &PrivilegeError{Dir: dir, Hint: "re-run with sudo", Err: sudoErr}
	}
	u, err := user.Current()
	if err != nil {
		return &PrivilegeError{Dir: dir, Hint: "re-run with sudo", Err: err}
	}
	if sudoErr := sudoCommand("chown", u.Uid+":"+u.Gid, dir); sudoErr != nil {
		return &PrivilegeError{Dir: dir, Hint: "re-run with sudo", Err: sudoErr}
	}
	return nil
}

// replaceAll swaps every artifact into place. Each existing binary is moved
// aside first; on any failure every moved-aside binary is restored, so the
// directory never ends up with a mixed set.
func (ins *Installer) replaceAll(staging *fetch.Staging, installDir string) (map[string]string, error) {
	type backup struct {
		dest   string
		backed string
	}
	var backups []backup

	restore := func() {
		for i := len(backups) - 1; i >= 0; i-- {
			b := backups[i]
			if err := os.Rename(b.backed, b.dest); err != nil {
				ins.log.WithError(err).WithField("path", b.dest).Error("rollback failed, previous binary left at " + b.backed)
			}
		}
	}

	installed := make(map[string]string, len(staging.Artifacts))
	for _, art := range staging.Artifacts {
		dest := filepath.Join(installDir, art.Name)

		if _, err := os.Stat(dest); err == nil {
			backed := dest + backupSuffix
			// A stale backup from an interrupted run must not block the
			// move-aside.
			_ = os.Remove(backed)
			if err := os.Rename(dest, backed); err != nil {
				restore()
				return nil, &CopyError{Name: art.Name, Err: fmt.Errorf("move previous binary aside: %w", err)}
			}
			backups = append(backups, backup{dest: dest, backed: backed})
		}

		if err := ins.copyBinary(art.StagedPath, dest); err != nil {
			restore()
			return nil, &CopyError{Name: art.Name, Err: err}
		}
		installed[art.Kind] = dest
	}

	// All swaps landed; the previous binaries are no longer needed. A locked
	// .old on windows is harmless and gets cleaned up by the next run.
	for _, b := range backups {
		_ = os.Remove(b.backed)
	}
	return installed, nil
}

// copyBinary copies via a temp file in the destination directory and renames
// into place, so a crash mid-copy never leaves a truncated binary under the
// final name. A permission failure on unix retries the copy through sudo.
func (ins *Installer) copyBinary(src, dest string) error {
	err := ins.copyTempRename(src, dest)
	if err == nil {
		return nil
	}
	if ins.target.OS == "windows" || !errors.Is(err, os.ErrPermission) {
		return err
	}

	ins.log.WithField("path", dest).Info("binary replacement requires elevation, retrying with sudo")
	if sudoErr := sudoCommand("cp", src, dest); sudoErr != nil {
		return sudoErr
	}
	return sudoCommand("chmod", "0755", dest)
}

func (ins *Installer) copyTempRename(src, dest string) error {
	// #nosec G304 -- src is inside our own staging directory
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open staged binary: %w", err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+"-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return fmt.Errorf("copy binary: %w", err)
	}
	if ins.target.OS != "windows" {
		// The exec bit does not survive the temp-file creation mode.
		if err := tmp.Chmod(0o755); err != nil {
			tmp.Close()
			return fmt.Errorf("chmod binary: %w", err)
		}
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("flush binary: %w", err)
	}

	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("replace binary: %w", err)
	}
	return nil
}

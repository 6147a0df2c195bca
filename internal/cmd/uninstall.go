package cmd

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/beeper-automations/installer/internal/manifest"
	"github.com/beeper-automations/installer/internal/paths"
	"github.com/beeper-automations/installer/internal/platform"
	"github.com/beeper-automations/installer/internal/svc"
)

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Stop and deregister the service and remove its binaries",
	RunE:  runUninstall,
}

func runUninstall(cmd *cobra.Command, args []string) error {
	target, err := platform.Resolve(runtime.GOOS, runtime.GOARCH)
	if err != nil {
		return err
	}
	man, err := manifest.Load()
	if err != nil {
		return err
	}
	installDir, err := paths.InstallDir(target.OS)
	if err != nil {
		return err
	}
	exePath, err := serviceExePath(man, target, installDir)
	if err != nil {
		return err
	}
	backend, err := svc.New(target, man.Service, exePath)
	if err != nil {
		return err
	}

	rec, err := backend.Inspect()
	if err != nil {
		return err
	}

	if rec.LegacyName != "" {
		if err := backend.MigrateLegacy(rec); err != nil {
			log.WithError(err).Warn("previous-generation service entry could not be removed")
		}
	}

	if rec.State == svc.StateRunning {
		if err := backend.Stop(); err != nil {
			log.WithError(err).Warn("service did not stop cleanly")
		}
	}
	if rec.State != svc.StateNotInstalled {
		if err := backend.Deregister(); err != nil {
			return err
		}
		log.Info("service deregistered")
	}

	// Binaries and the release marker go; PATH entries and any user
	// configuration stay.
	var firstErr error
	for _, spec := range man.ArtifactsFor(target.OS) {
		path := filepath.Join(installDir, spec.Name+target.BinSuffix())
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.WithError(err).WithField("path", path).Warn("binary was not removed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if err := os.Remove(paths.TagMarker(installDir)); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Warn("installed-release marker was not removed")
	}
	// Best effort; fails when anything else lives in the directory.
	_ = os.Remove(installDir)

	if firstErr != nil {
		return firstErr
	}
	log.Info("uninstall complete")
	return nil
}

package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/beeper-automations/installer/internal/manifest"
	"github.com/beeper-automations/installer/internal/paths"
	"github.com/beeper-automations/installer/internal/platform"
	"github.com/beeper-automations/installer/internal/svc"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report the service state and the installed release",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
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

	state, err := backend.Status()
	if err != nil {
		return err
	}

	tag, ok := paths.RecordedTag(installDir)
	if !ok {
		tag = "unknown"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "service: %s (%s backend)\nrelease: %s\ninstall dir: %s\n",
		state, backend.Kind(), tag, installDir)
	return nil
}

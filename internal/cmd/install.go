package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/beeper-automations/installer/internal/fetch"
	"github.com/beeper-automations/installer/internal/hostenv"
	"github.com/beeper-automations/installer/internal/install"
	"github.com/beeper-automations/installer/internal/manifest"
	"github.com/beeper-automations/installer/internal/pathenv"
	"github.com/beeper-automations/installer/internal/paths"
	"github.com/beeper-automations/installer/internal/platform"
	"github.com/beeper-automations/installer/internal/release"
	"github.com/beeper-automations/installer/internal/svc"
	"github.com/beeper-automations/installer/internal/update"
)

var (
	installTag   string
	installForce bool
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install or update the service binaries and register them with the OS",
	RunE:  runInstall,
}

func init() {
	installCmd.Flags().StringVar(&installTag, "tag", "", "install a specific release tag instead of the latest")
	installCmd.Flags().BoolVar(&installForce, "force", false, "reinstall even when already at the target release")
}

func runInstall(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	target, err := platform.Resolve(runtime.GOOS, runtime.GOARCH)
	if err != nil {
		return err
	}
	log.WithField("triple", target.Triple).Debug("resolved platform")

	man, err := manifest.Load()
	if err != nil {
		return err
	}

	tag, explicit, err := locateRelease(ctx, man)
	if err != nil {
		return err
	}

	installDir, err := paths.InstallDir(target.OS)
	if err != nil {
		return err
	}

	recorded, _ := paths.RecordedTag(installDir)
	decision, msg := update.Decide(recorded, tag.Value, explicit, installForce)
	log.Info(msg)
	if decision == update.DecisionSkip {
		return nil
	}

	if !hostenv.ExecAllowed(installDir) {
		log.WithField("dir", installDir).Warn("install directory is on a noexec mount, the service may fail to start")
	}

	staging, err := downloadArtifacts(ctx, man, tag, target)
	if err != nil {
		return err
	}
	defer staging.Discard()

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
	log.WithField("state", rec.State).Debug("service inspected")

	installed, err := install.New(target, backend, log).Install(staging, installDir, rec)
	if err != nil {
		return err
	}
	for kind, path := range installed {
		log.WithField("path", path).Debugf("installed %s binary", kind)
	}

	if err := pathenv.Ensure(installDir); err != nil {
		log.WithError(err).Warn("PATH was not updated, binaries must be invoked by full path")
	}

	if rec.LegacyName != "" {
		if err := backend.MigrateLegacy(rec); err != nil {
			log.WithError(err).Warn("previous-generation service entry could not be removed")
		} else {
			log.WithField("name", rec.LegacyName).Info("removed previous-generation service entry")
		}
	}

	if err := backend.Register(svc.DefaultRestartPolicy); err != nil {
		return err
	}
	log.WithField("backend", backend.Kind()).Info("service registered")

	if err := backend.Start(); err != nil {
		log.WithError(err).Warn("service did not start, it will come up with the next boot or logon")
	}

	if state, err := backend.Status(); err == nil {
		log.WithField("state", state).Info("service status")
	}

	if err := paths.RecordTag(installDir, tag.Value); err != nil {
		log.WithError(err).Warn("installed-release marker was not written")
	}

	log.Infof("install of %s complete", tag.Value)
	return nil
}

// locateRelease returns the target tag, honoring a --tag pin, and whether it
// was pinned.
func locateRelease(ctx context.Context, man *manifest.Manifest) (release.Tag, bool, error) {
	if installTag != "" {
		return release.Tag{Value: installTag}, true, nil
	}
	client := release.NewClient(viper.GetString("api-base"), userAgent())
	tag, err := client.LatestTag(ctx, man.Repo.ID())
	if err != nil {
		return release.Tag{}, false, err
	}
	return tag, false, nil
}

func downloadArtifacts(ctx context.Context, man *manifest.Manifest, tag release.Tag, target platform.Target) (*fetch.Staging, error) {
	var opts []fetch.Option
	if dir := viper.GetString("staging-dir"); dir != "" {
		opts = append(opts, fetch.WithStagingParent(dir))
	}
	if man.MinisignKey != "" {
		opts = append(opts, fetch.WithMinisignKey(man.MinisignKey))
	}
	fetcher := fetch.New(viper.GetString("download-base"), opts...)

	specs := man.ArtifactsFor(target.OS)
	if len(specs) == 0 {
		return nil, fmt.Errorf("manifest lists no artifacts for %s", target.OS)
	}
	return fetcher.Download(ctx, man.Repo, tag, target, specs)
}

// serviceExePath is the path the service registration points at: the service
// binary itself on linux and darwin, the hidden-window host on windows.
func serviceExePath(man *manifest.Manifest, target platform.Target, installDir string) (string, error) {
	kind := manifest.KindService
	if target.OS == "windows" {
		kind = manifest.KindServiceHost
	}
	for _, spec := range man.ArtifactsFor(target.OS) {
		if spec.Kind == kind {
			return filepath.Join(installDir, spec.Name+target.BinSuffix()), nil
		}
	}
	return "", fmt.Errorf("manifest lists no %s artifact for %s", kind, target.OS)
}

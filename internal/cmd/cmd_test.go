package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beeper-automations/installer/internal/manifest"
	"github.com/beeper-automations/installer/internal/platform"
)

func TestServiceExePathPerPlatform(t *testing.T) {
	man, err := manifest.Load()
	require.NoError(t, err)

	linux, err := platform.Resolve("linux", "amd64")
	require.NoError(t, err)
	path, err := serviceExePath(man, linux, "/opt/beeper-automations")
	require.NoError(t, err)
	assert.Equal(t, "/opt/beeper-automations/auto-beeper-service", path)

	darwin, err := platform.Resolve("darwin", "arm64")
	require.NoError(t, err)
	path, err = serviceExePath(man, darwin, "/install")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/install", "auto-beeper-service"), path)

	// The scheduled task points at the hidden-window host, not the service.
	windows, err := platform.Resolve("windows", "amd64")
	require.NoError(t, err)
	path, err = serviceExePath(man, windows, `C:\bin`)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(`C:\bin`, "auto-beeper-user-service.exe"), path)
}

func TestServiceExePathMissingKind(t *testing.T) {
	man := &manifest.Manifest{
		Artifacts: []manifest.ArtifactSpec{{Name: "auto-beeper-configurator", Kind: manifest.KindConfigurator}},
	}
	linux, err := platform.Resolve("linux", "amd64")
	require.NoError(t, err)

	_, err = serviceExePath(man, linux, "/opt")
	assert.Error(t, err)
}

func TestLocateReleaseHonorsPin(t *testing.T) {
	installTag = "v1.2.3"
	t.Cleanup(func() { installTag = "" })

	man, err := manifest.Load()
	require.NoError(t, err)

	tag, explicit, err := locateRelease(context.Background(), man)
	require.NoError(t, err)
	assert.True(t, explicit)
	assert.Equal(t, "v1.2.3", tag.Value)
}

func TestInitLog(t *testing.T) {
	require.NoError(t, initLog("debug", "console"))
	assert.Equal(t, "debug", log.GetLevel().String())

	require.NoError(t, initLog("info", filepath.Join(t.TempDir(), "install.log")))
	assert.Equal(t, "info", log.GetLevel().String())

	assert.Error(t, initLog("noisy", "console"))
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	versionCmd.Run(versionCmd, nil)
	assert.Equal(t, "dev\n", out.String())
}

func TestRootCommandWiring(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"install", "uninstall", "status", "version"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

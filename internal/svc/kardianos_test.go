package svc

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kardianos/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beeper-automations/installer/internal/manifest"
	"github.com/beeper-automations/installer/internal/platform"
)

func testTarget(goos string) platform.Target {
	return platform.Target{OS: goos, Arch: "amd64"}
}

// fakeService satisfies service.Service and records lifecycle calls.
type fakeService struct {
	cfg *service.Config

	ops []string

	installErr   error
	uninstallErr error
	startErr     error
	stopErr      error
	status       service.Status
	statusErr    error
}

func (f *fakeService) op(name string) { f.ops = append(f.ops, name) }

func (f *fakeService) Run() error     { f.op("run"); return nil }
func (f *fakeService) Start() error   { f.op("start"); return f.startErr }
func (f *fakeService) Stop() error    { f.op("stop"); return f.stopErr }
func (f *fakeService) Restart() error { f.op("restart"); return nil }
func (f *fakeService) Install() error { f.op("install"); return f.installErr }
func (f *fakeService) Uninstall() error {
	f.op("uninstall")
	return f.uninstallErr
}
func (f *fakeService) Logger(chan<- error) (service.Logger, error)       { return nil, nil }
func (f *fakeService) SystemLogger(chan<- error) (service.Logger, error) { return nil, nil }
func (f *fakeService) String() string                                    { return f.cfg.Name }
func (f *fakeService) Platform() string                                  { return "fake" }
func (f *fakeService) Status() (service.Status, error) {
	f.op("status")
	return f.status, f.statusErr
}

// installFakeService routes every handle the backend opens to the same fake
// and records the config each handle was built with.
func installFakeService(t *testing.T, fake *fakeService) *[]*service.Config {
	t.Helper()
	var configs []*service.Config
	orig := newService
	newService = func(cfg *service.Config) (service.Service, error) {
		configs = append(configs, cfg)
		fake.cfg = cfg
		return fake, nil
	}
	t.Cleanup(func() { newService = orig })
	return &configs
}

func unixIdent() manifest.ServiceIdent {
	return manifest.ServiceIdent{
		Name:        "beeper-automations",
		Label:       "com.beeper.automations",
		DisplayName: "Beeper Automations",
		Description: "Beeper Automations background service",
		LegacyUnit:  "auto-beeper",
		LegacyLabel: "com.autobeeper.service",
	}
}

func TestSystemdConfigCarriesPolicyOptions(t *testing.T) {
	fake := &fakeService{}
	configs := installFakeService(t, fake)

	b := newSystemdBackend(unixIdent(), "/opt/beeper-automations/auto-beeper-service")
	require.NoError(t, b.Start())

	require.Len(t, *configs, 1)
	cfg := (*configs)[0]
	assert.Equal(t, "beeper-automations", cfg.Name)
	assert.Equal(t, "/opt/beeper-automations/auto-beeper-service", cfg.Executable)
	assert.Equal(t, []string{"After=network.target"}, cfg.Dependencies)
	assert.Contains(t, cfg.Option["SystemdScript"], "Restart=on-failure")
	assert.Equal(t, "on-failure", cfg.Option["Restart"])
}

func TestLaunchdConfigIsUserAgent(t *testing.T) {
	fake := &fakeService{}
	configs := installFakeService(t, fake)

	b := newLaunchdBackend(unixIdent(), "/opt/beeper-automations/auto-beeper-service")
	require.NoError(t, b.Start())

	require.Len(t, *configs, 1)
	cfg := (*configs)[0]
	assert.Equal(t, "com.beeper.automations", cfg.Name)
	assert.Equal(t, true, cfg.Option["UserService"])
	assert.Equal(t, true, cfg.Option["RunAtLoad"])
	assert.Contains(t, cfg.Option["LaunchdConfig"], "ThrottleInterval")
}

func TestRegisterFreshInstallsWithoutUninstall(t *testing.T) {
	fake := &fakeService{}
	installFakeService(t, fake)

	b := newSystemdBackend(unixIdent(), "/opt/beeper-automations/auto-beeper-service")
	b.descriptorPath = filepath.Join(t.TempDir(), "absent.service")

	require.NoError(t, b.Register(DefaultRestartPolicy))
	assert.Equal(t, []string{"install"}, fake.ops)
}

func TestRegisterReplacesExistingRegistration(t *testing.T) {
	fake := &fakeService{}
	installFakeService(t, fake)

	b := newSystemdBackend(unixIdent(), "/opt/beeper-automations/auto-beeper-service")
	b.descriptorPath = writeTempDescriptor(t, "unit.service")

	require.NoError(t, b.Register(DefaultRestartPolicy))
	assert.Equal(t, []string{"uninstall", "install"}, fake.ops)
}

func TestRegisterToleratesStaleDescriptor(t *testing.T) {
	fake := &fakeService{uninstallErr: service.ErrNotInstalled}
	installFakeService(t, fake)

	b := newLaunchdBackend(unixIdent(), "/opt/beeper-automations/auto-beeper-service")
	b.descriptorPath = writeTempDescriptor(t, "agent.plist")

	// Descriptor on disk but the init system has no record of it.
	require.NoError(t, b.Register(DefaultRestartPolicy))
	assert.Equal(t, []string{"uninstall", "install"}, fake.ops)
}

func TestRegisterInstallFailureIsFatal(t *testing.T) {
	fake := &fakeService{installErr: errors.New("permission denied")}
	installFakeService(t, fake)

	b := newSystemdBackend(unixIdent(), "/opt/beeper-automations/auto-beeper-service")
	b.descriptorPath = filepath.Join(t.TempDir(), "absent.service")

	err := b.Register(DefaultRestartPolicy)
	var ctrlErr *ControlError
	require.ErrorAs(t, err, &ctrlErr)
	assert.Equal(t, "register", ctrlErr.Op)
}

func TestInspectNotInstalled(t *testing.T) {
	fake := &fakeService{}
	installFakeService(t, fake)

	b := newSystemdBackend(unixIdent(), "/opt/beeper-automations/auto-beeper-service")
	b.descriptorPath = filepath.Join(t.TempDir(), "absent.service")
	b.legacyPath = filepath.Join(t.TempDir(), "absent-legacy.service")

	rec, err := b.Inspect()
	require.NoError(t, err)
	assert.Equal(t, StateNotInstalled, rec.State)
	assert.False(t, rec.WasRunning)
	assert.Empty(t, rec.LegacyName)
	// Read-only: no lifecycle call may have happened.
	assert.NotContains(t, fake.ops, "stop")
	assert.NotContains(t, fake.ops, "uninstall")
}

func TestInspectRunningCapturesWasRunning(t *testing.T) {
	fake := &fakeService{status: service.StatusRunning}
	installFakeService(t, fake)

	b := newSystemdBackend(unixIdent(), "/opt/beeper-automations/auto-beeper-service")
	b.descriptorPath = writeTempDescriptor(t, "unit.service")

	rec, err := b.Inspect()
	require.NoError(t, err)
	assert.Equal(t, StateRunning, rec.State)
	assert.True(t, rec.WasRunning)
}

func TestInspectUnknownStateFallsBackToStopped(t *testing.T) {
	fake := &fakeService{status: service.StatusUnknown}
	installFakeService(t, fake)

	b := newSystemdBackend(unixIdent(), "/opt/beeper-automations/auto-beeper-service")
	b.descriptorPath = writeTempDescriptor(t, "unit.service")

	rec, err := b.Inspect()
	require.NoError(t, err)
	assert.Equal(t, StateStopped, rec.State)
	assert.False(t, rec.WasRunning)
}

func TestInspectDetectsLegacyUnit(t *testing.T) {
	fake := &fakeService{}
	installFakeService(t, fake)

	b := newSystemdBackend(unixIdent(), "/opt/beeper-automations/auto-beeper-service")
	b.descriptorPath = filepath.Join(t.TempDir(), "absent.service")
	b.legacyPath = writeTempDescriptor(t, "auto-beeper.service")

	rec, err := b.Inspect()
	require.NoError(t, err)
	assert.Equal(t, "auto-beeper", rec.LegacyName)
}

func TestMigrateLegacyStopsAndDeregisters(t *testing.T) {
	fake := &fakeService{stopErr: errors.New("not running")}
	configs := installFakeService(t, fake)

	b := newSystemdBackend(unixIdent(), "/opt/beeper-automations/auto-beeper-service")
	require.NoError(t, b.MigrateLegacy(Record{LegacyName: "auto-beeper"}))

	// Stop failure on a dead legacy entry is tolerated.
	assert.Equal(t, []string{"stop", "uninstall"}, fake.ops)
	require.Len(t, *configs, 1)
	assert.Equal(t, "auto-beeper", (*configs)[0].Name)
}

func TestMigrateLegacyNoopWithoutRecord(t *testing.T) {
	fake := &fakeService{}
	installFakeService(t, fake)

	b := newSystemdBackend(unixIdent(), "/opt/beeper-automations/auto-beeper-service")
	require.NoError(t, b.MigrateLegacy(Record{}))
	assert.Empty(t, fake.ops)
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		name      string
		status    service.Status
		statusErr error
		want      State
		wantErr   bool
	}{
		{"running", service.StatusRunning, nil, StateRunning, false},
		{"stopped", service.StatusStopped, nil, StateStopped, false},
		{"unknown", service.StatusUnknown, nil, StateUnknown, false},
		{"not installed", 0, service.ErrNotInstalled, StateNotInstalled, false},
		{"query failure", 0, errors.New("dbus unavailable"), StateUnknown, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeService{status: tt.status, statusErr: tt.statusErr}
			installFakeService(t, fake)

			b := newSystemdBackend(unixIdent(), "/opt/x")
			state, err := b.Status()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, state)
		})
	}
}

func TestBackendSelection(t *testing.T) {
	fake := &fakeService{}
	installFakeService(t, fake)

	tests := []struct {
		goos string
		want Kind
	}{
		{"linux", KindSystemd},
		{"darwin", KindLaunchd},
		{"windows", KindWindowsTask},
	}
	for _, tt := range tests {
		b, err := New(testTarget(tt.goos), unixIdent(), "/opt/x")
		require.NoError(t, err)
		assert.Equal(t, tt.want, b.Kind())
	}

	_, err := New(testTarget("plan9"), unixIdent(), "/opt/x")
	assert.Error(t, err)
}

func writeTempDescriptor(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("placeholder"), 0o644))
	return path
}

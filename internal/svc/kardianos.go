package svc

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/kardianos/service"

	"github.com/beeper-automations/installer/internal/manifest"
)

// newService builds the kardianos handle. A package variable so tests can
// substitute a fake service without a live init system.
var newService = func(cfg *service.Config) (service.Service, error) {
	return service.New(noopProgram{}, cfg)
}

// noopProgram satisfies the kardianos run interface. The installer never
// runs the service in-process; it only installs and controls it.
type noopProgram struct{}

func (noopProgram) Start(service.Service) error { return nil }
func (noopProgram) Stop(service.Service) error  { return nil }

// unixBackend drives systemd or launchd through kardianos/service. Neither
// supports an in-place definition update, so Register deregisters first when
// a descriptor already exists.
type unixBackend struct {
	kind           Kind
	name           string // unit name or launchd label
	displayName    string
	description    string
	exePath        string
	descriptorPath string
	legacyName     string
	legacyPath     string
	// option hooks per variant set by the constructors
	configure func(cfg *service.Config, policy RestartPolicy)
}

func newSystemdBackend(ident manifest.ServiceIdent, exePath string) *unixBackend {
	return &unixBackend{
		kind:           KindSystemd,
		name:           ident.Name,
		displayName:    ident.DisplayName,
		description:    ident.Description,
		exePath:        exePath,
		descriptorPath: systemdUnitPath(ident.Name),
		legacyName:     ident.LegacyUnit,
		legacyPath:     systemdUnitPath(ident.LegacyUnit),
		configure: func(cfg *service.Config, policy RestartPolicy) {
			cfg.Dependencies = []string{"After=network.target"}
			cfg.Option["SystemdScript"] = systemdScript(policy)
			cfg.Option["Restart"] = "on-failure"
		},
	}
}

func newLaunchdBackend(ident manifest.ServiceIdent, exePath string) *unixBackend {
	return &unixBackend{
		kind:           KindLaunchd,
		name:           ident.Label,
		displayName:    ident.DisplayName,
		description:    ident.Description,
		exePath:        exePath,
		descriptorPath: launchdPlistPath(ident.Label),
		legacyName:     ident.LegacyLabel,
		legacyPath:     launchdPlistPath(ident.LegacyLabel),
		configure: func(cfg *service.Config, policy RestartPolicy) {
			// Per-user agent: registered under the invoking user, started
			// at logon rather than boot.
			cfg.Option["UserService"] = true
			cfg.Option["RunAtLoad"] = true
			cfg.Option["LaunchdConfig"] = launchdPlist(policy)
		},
	}
}

func systemdUnitPath(name string) string {
	if name == "" {
		return ""
	}
	return filepath.Join("/etc/systemd/system", name+".service")
}

func launchdPlistPath(label string) string {
	if label == "" {
		return ""
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, "Library", "LaunchAgents", label+".plist")
}

func (b *unixBackend) Kind() Kind { return b.kind }

func (b *unixBackend) svcConfig(name string, policy RestartPolicy) *service.Config {
	cfg := &service.Config{
		Name:        name,
		DisplayName: b.displayName,
		Description: b.description,
		Executable:  b.exePath,
		Option:      make(service.KeyValue),
		EnvVars:     make(map[string]string),
	}
	if b.configure != nil {
		b.configure(cfg, policy)
	}
	return cfg
}

func (b *unixBackend) handle(name string, policy RestartPolicy) (service.Service, error) {
	s, err := newService(b.svcConfig(name, policy))
	if err != nil {
		return nil, &ControlError{Op: "init backend", Name: name, Err: err}
	}
	return s, nil
}

func (b *unixBackend) Inspect() (Record, error) {
	rec := Record{Backend: b.kind, Name: b.name, State: StateNotInstalled}

	if b.legacyPath != "" && fileExists(b.legacyPath) {
		rec.LegacyName = b.legacyName
	}

	// Existence is decided by the descriptor file; the run-state query alone
	// cannot distinguish "not installed" from "installed but dead" on every
	// init system.
	if !fileExists(b.descriptorPath) {
		return rec, nil
	}

	state, err := b.Status()
	if err != nil {
		return Record{}, err
	}
	if state == StateUnknown {
		// Descriptor exists but the init system does not report a state.
		state = StateStopped
	}
	rec.State = state
	rec.WasRunning = state == StateRunning
	return rec, nil
}

func (b *unixBackend) Register(policy RestartPolicy) error {
	s, err := b.handle(b.name, policy)
	if err != nil {
		return err
	}

	// kardianos refuses to install over an existing definition; deregister
	// first and recreate with the current binary path and policy.
	if fileExists(b.descriptorPath) {
		if err := s.Uninstall(); err != nil && !errors.Is(err, service.ErrNotInstalled) {
			return &ControlError{Op: "replace registration", Name: b.name, Err: err}
		}
	}

	if err := s.Install(); err != nil {
		return &ControlError{Op: "register", Name: b.name, Err: err}
	}
	return nil
}

func (b *unixBackend) Deregister() error {
	s, err := b.handle(b.name, DefaultRestartPolicy)
	if err != nil {
		return err
	}
	if err := s.Uninstall(); err != nil && !errors.Is(err, service.ErrNotInstalled) {
		return &ControlError{Op: "deregister", Name: b.name, Err: err}
	}
	return nil
}

func (b *unixBackend) MigrateLegacy(rec Record) error {
	if rec.LegacyName == "" {
		return nil
	}
	s, err := b.handle(rec.LegacyName, DefaultRestartPolicy)
	if err != nil {
		return err
	}
	// Best-effort stop: the legacy entry may already be dead.
	_ = s.Stop()
	if err := s.Uninstall(); err != nil && !errors.Is(err, service.ErrNotInstalled) {
		return &ControlError{Op: "deregister legacy", Name: rec.LegacyName, Err: err}
	}
	return nil
}

func (b *unixBackend) Start() error {
	s, err := b.handle(b.name, DefaultRestartPolicy)
	if err != nil {
		return err
	}
	if err := s.Start(); err != nil {
		return &ControlError{Op: "start", Name: b.name, Err: err}
	}
	return nil
}

func (b *unixBackend) Stop() error {
	s, err := b.handle(b.name, DefaultRestartPolicy)
	if err != nil {
		return err
	}
	if err := s.Stop(); err != nil {
		return &ControlError{Op: "stop", Name: b.name, Err: err}
	}
	return nil
}

func (b *unixBackend) Status() (State, error) {
	s, err := b.handle(b.name, DefaultRestartPolicy)
	if err != nil {
		return StateUnknown, err
	}
	status, err := s.Status()
	switch {
	case errors.Is(err, service.ErrNotInstalled):
		return StateNotInstalled, nil
	case err != nil:
		return StateUnknown, &ControlError{Op: "status", Name: b.name, Err: err}
	}
	switch status {
	case service.StatusRunning:
		return StateRunning, nil
	case service.StatusStopped:
		return StateStopped, nil
	default:
		return StateUnknown, nil
	}
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// Package svc is the capability over the three native process supervisors:
// systemd (linux, system scope), launchd (darwin, user agent) and the
// Windows Task Scheduler (per-user logon task). The orchestrator depends
// only on the Backend interface; the variant is selected once from the
// resolved platform.
package svc

import (
	"fmt"
	"time"

	"github.com/beeper-automations/installer/internal/manifest"
	"github.com/beeper-automations/installer/internal/platform"
)

// Kind names a backend variant.
type Kind string

const (
	KindSystemd     Kind = "systemd"
	KindLaunchd     Kind = "launchd"
	KindWindowsTask Kind = "windows-task"
)

// State is a service registration's run state.
type State string

const (
	StateNotInstalled State = "not-installed"
	StateStopped      State = "stopped"
	StateRunning      State = "running"
	StateUnknown      State = "unknown"
)

// Record is the read-only snapshot taken before any mutation. It is captured
// once and trusted for the remainder of the run; WasRunning is the sole
// basis for rollback and restart decisions.
type Record struct {
	Backend    Kind
	Name       string
	State      State
	WasRunning bool
	// LegacyName is set when a registration left by a prior backend
	// generation was detected; it must be deregistered before the current
	// entry is created.
	LegacyName string
}

// RestartPolicy describes how the backend should supervise the entry:
// restart on failure, capped at MaxRetries attempts spaced RetryDelay apart.
// Start-with-host semantics (boot vs logon) are a property of the backend
// variant, not of the policy.
type RestartPolicy struct {
	MaxRetries int
	RetryDelay time.Duration
}

// DefaultRestartPolicy matches what the hand-maintained platform scripts
// configured.
var DefaultRestartPolicy = RestartPolicy{MaxRetries: 3, RetryDelay: time.Minute}

// Backend is the one logical contract over the three supervisors.
type Backend interface {
	Kind() Kind
	// Inspect is strictly read-only: existence, run state and legacy
	// detection. It never mutates backend state.
	Inspect() (Record, error)
	// Register ensures a supervised auto-starting entry for the current
	// binary path: updated in place where the backend supports it,
	// otherwise deregistered and recreated.
	Register(policy RestartPolicy) error
	Deregister() error
	// MigrateLegacy stops and deregisters the prior-generation entry named
	// in rec. The two generations must never coexist.
	MigrateLegacy(rec Record) error
	Start() error
	Stop() error
	Status() (State, error)
}

// ControlError is a failed interaction with the backend's native tooling.
// During best-effort stop/start it is reported as a warning; a failure to
// create the registration itself is fatal.
type ControlError struct {
	Op   string
	Name string
	Err  error
}

func (e *ControlError) Error() string {
	return fmt.Sprintf("service %s: %s: %v", e.Name, e.Op, e.Err)
}

func (e *ControlError) Unwrap() error { return e.Err }

// New selects the backend for the resolved platform. exePath is the binary
// the supervised entry executes: the service binary on linux/darwin, the
// hidden-window host on windows.
func New(target platform.Target, ident manifest.ServiceIdent, exePath string) (Backend, error) {
	switch target.OS {
	case "linux":
		return newSystemdBackend(ident, exePath), nil
	case "darwin":
		return newLaunchdBackend(ident, exePath), nil
	case "windows":
		return newTaskBackend(ident, exePath), nil
	default:
		return nil, fmt.Errorf("no service backend for %s", target.OS)
	}
}

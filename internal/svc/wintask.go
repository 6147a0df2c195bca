package svc

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/beeper-automations/installer/internal/manifest"
)

// taskBackend registers a per-user scheduled task with a logon trigger. The
// Task Scheduler supervises the hidden-window host binary in the user's
// session; the Windows SCM is only touched to remove the prior-generation
// service registration.
type taskBackend struct {
	taskName    string
	legacySvc   string // prior-generation SCM service name, "" when none
	description string
	exePath     string
}

func newTaskBackend(ident manifest.ServiceIdent, exePath string) *taskBackend {
	return &taskBackend{
		taskName:    ident.TaskName,
		legacySvc:   ident.LegacyService,
		description: ident.Description,
		exePath:     exePath,
	}
}

func (b *taskBackend) Kind() Kind { return KindWindowsTask }

func (b *taskBackend) Inspect() (Record, error) {
	rec := Record{Backend: KindWindowsTask, Name: b.taskName, State: StateNotInstalled}

	if b.legacySvc != "" {
		out, err := runCommand("sc", "query", b.legacySvc)
		if err == nil && strings.Contains(out, "SERVICE_NAME") {
			rec.LegacyName = b.legacySvc
		}
	}

	out, err := runCommand("schtasks", "/Query", "/TN", b.taskName, "/FO", "LIST", "/V")
	if err != nil {
		// schtasks reports a missing task through a nonzero exit; existence
		// is the one query where that is not an error.
		return rec, nil
	}
	rec.State = parseTaskState(out)
	rec.WasRunning = rec.State == StateRunning
	return rec, nil
}

// parseTaskState extracts the run state from `schtasks /Query /FO LIST /V`
// output. "Ready" and "Disabled" are registered-but-not-running.
func parseTaskState(out string) State {
	for _, line := range strings.Split(out, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok || strings.TrimSpace(key) != "Status" {
			continue
		}
		switch strings.TrimSpace(value) {
		case "Running":
			return StateRunning
		case "Ready", "Disabled", "Queued":
			return StateStopped
		default:
			return StateUnknown
		}
	}
	return StateUnknown
}

// Register creates or overwrites the task definition from rendered XML.
// /F makes the update in place; no deregister step is needed.
func (b *taskBackend) Register(policy RestartPolicy) error {
	xml, err := renderTaskXML(b.exePath, b.description, policy)
	if err != nil {
		return &ControlError{Op: "render task definition", Name: b.taskName, Err: err}
	}

	tmp, err := os.CreateTemp("", "auto-beeper-task-*.xml")
	if err != nil {
		return &ControlError{Op: "write task definition", Name: b.taskName, Err: err}
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(xml); err != nil {
		tmp.Close()
		return &ControlError{Op: "write task definition", Name: b.taskName, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &ControlError{Op: "write task definition", Name: b.taskName, Err: err}
	}

	if _, err := runCommand("schtasks", "/Create", "/TN", b.taskName, "/XML", tmp.Name(), "/F"); err != nil {
		return &ControlError{Op: "register", Name: b.taskName, Err: err}
	}
	return nil
}

func (b *taskBackend) Deregister() error {
	if _, err := runCommand("schtasks", "/Delete", "/TN", b.taskName, "/F"); err != nil {
		return &ControlError{Op: "deregister", Name: b.taskName, Err: err}
	}
	return nil
}

func (b *taskBackend) MigrateLegacy(rec Record) error {
	if rec.LegacyName == "" {
		return nil
	}
	// Best-effort stop; the service may already be stopped.
	_, _ = runCommand("sc", "stop", rec.LegacyName)
	if _, err := runCommand("sc", "delete", rec.LegacyName); err != nil {
		return &ControlError{Op: "deregister legacy", Name: rec.LegacyName, Err: err}
	}
	return nil
}

func (b *taskBackend) Start() error {
	if _, err := runCommand("schtasks", "/Run", "/TN", b.taskName); err != nil {
		return &ControlError{Op: "start", Name: b.taskName, Err: err}
	}
	return nil
}

func (b *taskBackend) Stop() error {
	if _, err := runCommand("schtasks", "/End", "/TN", b.taskName); err != nil {
		return &ControlError{Op: "stop", Name: b.taskName, Err: err}
	}
	return nil
}

func (b *taskBackend) Status() (State, error) {
	out, err := runCommand("schtasks", "/Query", "/TN", b.taskName, "/FO", "LIST", "/V")
	if err != nil {
		return StateNotInstalled, nil
	}
	return parseTaskState(out), nil
}

// Task Scheduler's minimum restart interval is one minute.
const minTaskRestartInterval = time.Minute

var taskXMLTemplate = template.Must(template.New("task").Parse(`<?xml version="1.0" encoding="UTF-16"?>
<Task version="1.2" xmlns="http://schemas.microsoft.com/windows/2004/02/mit/task">
  <RegistrationInfo>
    <Description>{{.Description}}</Description>
  </RegistrationInfo>
  <Triggers>
    <LogonTrigger>
      <Enabled>true</Enabled>
    </LogonTrigger>
  </Triggers>
  <Principals>
    <Principal id="Author">
      <LogonType>InteractiveToken</LogonType>
      <RunLevel>LeastPrivilege</RunLevel>
    </Principal>
  </Principals>
  <Settings>
    <DisallowStartIfOnBatteries>false</DisallowStartIfOnBatteries>
    <StopIfGoingOnBatteries>false</StopIfGoingOnBatteries>
    <StartWhenAvailable>true</StartWhenAvailable>
    <ExecutionTimeLimit>PT0S</ExecutionTimeLimit>
    <RestartOnFailure>
      <Interval>{{.RestartInterval}}</Interval>
      <Count>{{.RestartCount}}</Count>
    </RestartOnFailure>
  </Settings>
  <Actions Context="Author">
    <Exec>
      <Command>{{.Command}}</Command>
      <WorkingDirectory>{{.WorkingDirectory}}</WorkingDirectory>
    </Exec>
  </Actions>
</Task>
`))

type taskXMLData struct {
	Description      string
	Command          string
	WorkingDirectory string
	RestartInterval  string
	RestartCount     int
}

func renderTaskXML(exePath, description string, policy RestartPolicy) (string, error) {
	delay := policy.RetryDelay
	if delay < minTaskRestartInterval {
		delay = minTaskRestartInterval
	}

	var sb strings.Builder
	err := taskXMLTemplate.Execute(&sb, taskXMLData{
		Description:      description,
		Command:          exePath,
		WorkingDirectory: taskWorkingDir(exePath),
		RestartInterval:  isoMinutes(delay),
		RestartCount:     policy.MaxRetries,
	})
	if err != nil {
		return "", err
	}
	return sb.String(), nil
}

// taskWorkingDir splits the directory off a windows exe path. filepath.Dir
// only understands the host separator, so the backslash split is done by
// hand.
func taskWorkingDir(exePath string) string {
	if i := strings.LastIndexByte(exePath, '\\'); i >= 0 {
		return exePath[:i]
	}
	return filepath.Dir(exePath)
}

// isoMinutes formats a duration as the ISO-8601 minute form Task Scheduler
// expects, e.g. PT1M.
func isoMinutes(d time.Duration) string {
	minutes := int(d.Round(time.Minute) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf("PT%dM", minutes)
}

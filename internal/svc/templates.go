package svc

import (
	"fmt"
	"time"
)

// The descriptor templates below are handed to kardianos/service through the
// SystemdScript and LaunchdConfig options. The {{...}} placeholders are
// expanded by kardianos against its own config context; the restart policy
// values are baked in here because kardianos exposes no policy knobs beyond
// a bare Restart= mode.

const systemdScriptFormat = `[Unit]
Description={{.Description}}
ConditionFileIsExecutable={{.Path|cmdEscape}}
After=network.target
StartLimitIntervalSec=%d
StartLimitBurst=%d

[Service]
ExecStart={{.Path|cmdEscape}}{{range .Arguments}} {{.|cmd}}{{end}}
{{if .WorkingDirectory}}WorkingDirectory={{.WorkingDirectory|cmdEscape}}{{end}}
Restart=on-failure
RestartSec=%d
EnvironmentFile=-/etc/sysconfig/{{.Name}}

[Install]
WantedBy=multi-user.target
`

// systemdScript renders the unit-file template for one restart policy.
// StartLimitBurst caps the retries; the interval window is sized so the cap
// can actually be reached at the configured delay.
func systemdScript(policy RestartPolicy) string {
	delaySec := int(policy.RetryDelay / time.Second)
	if delaySec < 1 {
		delaySec = 1
	}
	window := delaySec * (policy.MaxRetries + 1)
	return fmt.Sprintf(systemdScriptFormat, window, policy.MaxRetries, delaySec)
}

const launchdPlistFormat = `<?xml version='1.0' encoding='UTF-8'?>
<!DOCTYPE plist PUBLIC "-//Apple Computer//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version='1.0'>
<dict>
<key>Label</key>
<string>{{html .Name}}</string>
<key>ProgramArguments</key>
<array>
        <string>{{html .Path}}</string>
{{range .Config.Arguments}}
        <string>{{html .}}</string>
{{end}}
</array>
{{if .WorkingDirectory}}<key>WorkingDirectory</key>
<string>{{html .WorkingDirectory}}</string>{{end}}
<key>RunAtLoad</key>
<true/>
<key>KeepAlive</key>
<dict>
<key>SuccessfulExit</key>
<false/>
</dict>
<key>ThrottleInterval</key>
<integer>%d</integer>
<key>Disabled</key>
<false/>
</dict>
</plist>
`

// launchdPlist renders the agent plist template. launchd has no retry cap;
// the delay maps to ThrottleInterval and launchd owns the give-up decision.
func launchdPlist(policy RestartPolicy) string {
	delaySec := int(policy.RetryDelay / time.Second)
	if delaySec < 1 {
		delaySec = 1
	}
	return fmt.Sprintf(launchdPlistFormat, delaySec)
}

package pathenv

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasProfileEntryVariants(t *testing.T) {
	dir := "/opt/beeper-automations"
	tests := []struct {
		name    string
		content string
		want    bool
	}{
		{"empty", "", false},
		{"unrelated", "alias ll='ls -l'\nexport EDITOR=vim\n", false},
		{"double quoted trailing", `export PATH="$PATH:/opt/beeper-automations"` + "\n", true},
		{"double quoted leading", `export PATH="/opt/beeper-automations:$PATH"` + "\n", true},
		{"single quoted", `export PATH='$PATH:/opt/beeper-automations'` + "\n", true},
		{"unquoted", "export PATH=$PATH:/opt/beeper-automations\n", true},
		{"no export", "PATH=$PATH:/opt/beeper-automations\n", true},
		{"indented", "  export PATH=\"$PATH:/opt/beeper-automations\"\n", true},
		{"substring of longer element", `export PATH="$PATH:/opt/beeper-automations-extra"` + "\n", false},
		{"other path entry", `export PATH="$PATH:/usr/local/bin"` + "\n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, hasProfileEntry(tt.content, dir))
		})
	}
}

func TestProfileEntry(t *testing.T) {
	entry := profileEntry("/opt/beeper-automations")
	assert.Equal(t, `export PATH="$PATH:/opt/beeper-automations"`, entry)
	// The generated line must satisfy its own detector.
	assert.True(t, hasProfileEntry(entry, "/opt/beeper-automations"))
}

func TestWindowsPathContains(t *testing.T) {
	dir := `C:\Users\sam\AppData\Local\BeeperAutomations\bin`
	tests := []struct {
		name string
		path string
		want bool
	}{
		{"empty", "", false},
		{"exact", dir, true},
		{"case insensitive", `c:\users\sam\appdata\local\beeperautomations\bin`, true},
		{"trailing backslash", dir + `\`, true},
		{"among others", `C:\Windows;` + dir + `;C:\Windows\System32`, true},
		{"absent", `C:\Windows;C:\Windows\System32`, false},
		{"prefix of longer element", dir + `2`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, windowsPathContains(tt.path, dir))
		})
	}
}

func TestAppendPathElem(t *testing.T) {
	assert.Equal(t, `C:\bin`, appendPathElem("", `C:\bin`))
	assert.Equal(t, `C:\Windows;C:\bin`, appendPathElem(`C:\Windows`, `C:\bin`))
	assert.Equal(t, `C:\Windows;C:\bin`, appendPathElem(`C:\Windows;`, `C:\bin`))
}

package svc

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"
)

const maxCommandOutput = 2048

// runCommand invokes a backend utility and returns its combined output.
// A package variable so backend tests can substitute a fake runner.
var runCommand = runCombinedOutput

func runCombinedOutput(name string, args ...string) (string, error) {
	cmd := exec.Command(name, args...)
	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined
	if err := cmd.Run(); err != nil {
		return combined.String(), fmt.Errorf("%s %s: %s", name, strings.Join(args, " "), trimCommandOutput(combined.String()))
	}
	return combined.String(), nil
}

func trimCommandOutput(out string) string {
	clean := strings.TrimSpace(out)
	if clean == "" {
		return "command failed"
	}
	if len(clean) > maxCommandOutput {
		return clean[:maxCommandOutput] + "..."
	}
	return clean
}

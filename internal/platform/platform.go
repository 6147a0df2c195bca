// Package platform maps the running OS/CPU pair onto the canonical build
// target used to name release artifacts.
package platform

import "fmt"

// Target is the resolved build target for this run. It is resolved once
// and treated as immutable afterwards.
type Target struct {
	OS     string // GOOS value: linux, darwin, windows
	Arch   string // GOARCH value: amd64, arm64
	Triple string // release artifact triple, e.g. x86_64-unknown-linux-gnu
}

// ErrUnsupported is wrapped by Resolve for any OS/arch pair outside the table.
var ErrUnsupported = fmt.Errorf("unsupported platform")

type osArch struct {
	os   string
	arch string
}

// Windows releases ship a single build; the triple is fixed regardless of the
// detected architecture (x86_64 binaries run on arm64 Windows via emulation).
const windowsTriple = "x86_64-pc-windows-msvc"

var triples = map[osArch]string{
	{"linux", "amd64"}:  "x86_64-unknown-linux-gnu",
	{"linux", "arm64"}:  "aarch64-unknown-linux-gnu",
	{"darwin", "amd64"}: "x86_64-apple-darwin",
	{"darwin", "arm64"}: "aarch64-apple-darwin",
}

// Resolve maps a GOOS/GOARCH pair to its Target. Callers pass runtime.GOOS
// and runtime.GOARCH; they are parameters so tests can cover the whole table.
func Resolve(goos, goarch string) (Target, error) {
	if goos == "windows" {
		return Target{OS: goos, Arch: goarch, Triple: windowsTriple}, nil
	}
	triple, ok := triples[osArch{goos, goarch}]
	if !ok {
		return Target{}, fmt.Errorf("%w: %s/%s", ErrUnsupported, goos, goarch)
	}
	return Target{OS: goos, Arch: goarch, Triple: triple}, nil
}

// BinSuffix returns the executable suffix for artifact names on this target.
func (t Target) BinSuffix() string {
	if t.OS == "windows" {
		return ".exe"
	}
	return ""
}

func (t Target) String() string {
	return t.OS + "/" + t.Arch + " (" + t.Triple + ")"
}

// Package manifest holds the embedded install manifest: which release
// repository to query, which artifacts a complete install consists of, and
// the service identities per backend. The manifest is data, not user
// configuration; it is validated against an embedded JSON schema at load.
package manifest

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed manifest.json
var manifestBytes []byte

//go:embed schema/install-manifest.schema.json
var schemaBytes []byte

// Artifact kinds. ServiceHost is the hidden-window host used only by the
// Windows scheduled-task backend.
const (
	KindService      = "service"
	KindServiceHost  = "serviceHost"
	KindConfigurator = "configurator"
)

// Repo identifies the release-hosting repository.
type Repo struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

// ID returns the owner/name form used in API paths.
func (r Repo) ID() string { return r.Owner + "/" + r.Name }

// ArtifactSpec names one downloadable binary. Platforms limits the spec to
// specific GOOS values; empty means all platforms.
type ArtifactSpec struct {
	Name      string   `json:"name"`
	Kind      string   `json:"kind"`
	Platforms []string `json:"platforms,omitempty"`
}

// AppliesTo reports whether the artifact is part of an install on goos.
func (a ArtifactSpec) AppliesTo(goos string) bool {
	if len(a.Platforms) == 0 {
		return true
	}
	for _, p := range a.Platforms {
		if p == goos {
			return true
		}
	}
	return false
}

// ServiceIdent carries the registration names for every backend, current and
// prior generation. The legacy fields enable migration: a registration left
// by an earlier installer generation is deregistered before the current one
// is created.
type ServiceIdent struct {
	Name          string `json:"name"`          // systemd unit name
	Label         string `json:"label"`         // launchd label
	TaskName      string `json:"taskName"`      // Windows scheduled task name
	DisplayName   string `json:"displayName"`
	Description   string `json:"description"`
	LegacyUnit    string `json:"legacyUnit,omitempty"`    // prior systemd unit
	LegacyLabel   string `json:"legacyLabel,omitempty"`   // prior launchd label
	LegacyService string `json:"legacyService,omitempty"` // prior Windows SCM service
}

type Manifest struct {
	Schema      string         `json:"schema"`
	Version     int            `json:"version"`
	Repo        Repo           `json:"repo"`
	Artifacts   []ArtifactSpec `json:"artifacts"`
	Service     ServiceIdent   `json:"service"`
	MinisignKey string         `json:"minisignKey,omitempty"` // base64 public key; empty disables verification
}

// ArtifactsFor filters the manifest's artifact list down to one platform.
func (m *Manifest) ArtifactsFor(goos string) []ArtifactSpec {
	var out []ArtifactSpec
	for _, a := range m.Artifacts {
		if a.AppliesTo(goos) {
			out = append(out, a)
		}
	}
	return out
}

var (
	loadOnce sync.Once
	loaded   *Manifest
	loadErr  error
)

// Load parses and validates the embedded manifest. The result is cached; an
// invalid manifest is a packaging defect and fatal pre-flight.
func Load() (*Manifest, error) {
	loadOnce.Do(func() {
		loaded, loadErr = parse(manifestBytes)
	})
	return loaded, loadErr
}

func parse(data []byte) (*Manifest, error) {
	schema, err := compileSchema()
	if err != nil {
		return nil, err
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse install manifest: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("invalid install manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode install manifest: %w", err)
	}
	return &m, nil
}

func compileSchema() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaBytes))
	if err != nil {
		return nil, fmt.Errorf("parse manifest schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("install-manifest.schema.json", doc); err != nil {
		return nil, fmt.Errorf("add manifest schema: %w", err)
	}
	schema, err := c.Compile("install-manifest.schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile manifest schema: %w", err)
	}
	return schema, nil
}

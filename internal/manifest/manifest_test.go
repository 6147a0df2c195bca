package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmbedded(t *testing.T) {
	m, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "beeper-automations/beeper-automations", m.Repo.ID())
	assert.NotEmpty(t, m.Service.Name)
	assert.NotEmpty(t, m.Service.TaskName)

	// Every platform install includes the service and the configurator.
	for _, goos := range []string{"linux", "darwin", "windows"} {
		kinds := map[string]bool{}
		for _, a := range m.ArtifactsFor(goos) {
			kinds[a.Kind] = true
		}
		assert.True(t, kinds[KindService], "service artifact missing on %s", goos)
		assert.True(t, kinds[KindConfigurator], "configurator artifact missing on %s", goos)
		// The hidden-window host only ships for the scheduled-task backend.
		assert.Equal(t, goos == "windows", kinds[KindServiceHost], "serviceHost on %s", goos)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty object", `{}`},
		{"missing artifacts", `{"schema":"install-manifest/v1","version":1,"repo":{"owner":"a","name":"b"},"service":{"name":"n","label":"l","taskName":"t","displayName":"d","description":"x"}}`},
		{"bad kind", `{"schema":"install-manifest/v1","version":1,"repo":{"owner":"a","name":"b"},"artifacts":[{"name":"bin","kind":"plugin"}],"service":{"name":"n","label":"l","taskName":"t","displayName":"d","description":"x"}}`},
		{"version zero", `{"schema":"install-manifest/v1","version":0,"repo":{"owner":"a","name":"b"},"artifacts":[{"name":"bin","kind":"service"}],"service":{"name":"n","label":"l","taskName":"t","displayName":"d","description":"x"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parse([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestArtifactAppliesTo(t *testing.T) {
	all := ArtifactSpec{Name: "a", Kind: KindService}
	assert.True(t, all.AppliesTo("linux"))
	assert.True(t, all.AppliesTo("windows"))

	winOnly := ArtifactSpec{Name: "b", Kind: KindServiceHost, Platforms: []string{"windows"}}
	assert.True(t, winOnly.AppliesTo("windows"))
	assert.False(t, winOnly.AppliesTo("darwin"))
}

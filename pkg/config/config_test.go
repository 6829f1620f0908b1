package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shipway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const minimalConfig = `
target:
  name: api
  host: deploy.example.com
  user: deploy
  workdir: /srv/api
  descriptor: deploy/compose.yaml
  health_url: https://api.example.com/health
`

func TestLoad_MinimalAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "api", cfg.Target.Name)
	assert.Equal(t, 22, cfg.Target.Port)
	assert.Equal(t, 10, cfg.Probe.Attempts)
	assert.Equal(t, 3*time.Second, cfg.Probe.Interval)
	assert.Equal(t, 1, cfg.Probe.Consecutive)
	assert.Equal(t, 2, cfg.Transfer.Retries)
	assert.Equal(t, 5, cfg.Retention.Keep)
	assert.Equal(t, 10*time.Second, cfg.SSH.ConnectTimeout)
	assert.Equal(t, filepath.Join(cfg.DataDir, "artifacts"), cfg.StoreDir)
}

func TestLoad_OverridesPolicy(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+`
probe:
  attempts: 20
  interval: 1s
  consecutive: 3
retention:
  keep: 10
ssh:
  connect_timeout: 2s
`))
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.Probe.Attempts)
	assert.Equal(t, time.Second, cfg.Probe.Interval)
	assert.Equal(t, 3, cfg.Probe.Consecutive)
	assert.Equal(t, 10, cfg.Retention.Keep)
	assert.Equal(t, 2*time.Second, cfg.SSH.ConnectTimeout)
	// Unset values still default.
	assert.Equal(t, 5*time.Second, cfg.Probe.Timeout)
}

func TestLoad_MissingRequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "no target name",
			yaml:    "target:\n  host: h\n",
			wantErr: "target.name",
		},
		{
			name:    "no host",
			yaml:    "target:\n  name: api\n",
			wantErr: "target.host",
		},
		{
			name:    "no health url",
			yaml:    "target:\n  name: api\n  host: h\n  user: u\n  workdir: /srv\n  descriptor: c.yaml\n",
			wantErr: "target.health_url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_RejectsUnderscoreInTargetName(t *testing.T) {
	// "_" separates name from revision in artifact filenames, so a name
	// like api_v2 would alias into the api catalog as revision v2_<rev>.
	yaml := "target:\n  name: api_v2\n  host: h\n  user: u\n  workdir: /srv\n  descriptor: c.yaml\n  health_url: http://h/health\n"
	_, err := Load(writeConfig(t, yaml))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must not contain '_'")
}

func TestLoad_FileMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoad_MalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "target: [not a mapping"))
	require.Error(t, err)
}

package profile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleProfile = `
targets:
  - name: prod-nas
    network: tcp
    addresses:
      - 10.0.0.1:2049
      - 10.0.0.2:2049
    program: 100003
    version: 3
    min_vers: 2
    max_vers: 3
    soft: true
    timeo: 2s
  - name: bare
    addresses:
      - 10.0.0.9:2049
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mounts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleProfile), 0o644))
	return path
}

func TestLoadAndFind(t *testing.T) {
	f, err := Load(writeSample(t))
	require.NoError(t, err)
	require.Len(t, f.Targets, 2)

	target, err := f.Find("prod-nas")
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1:2049", "10.0.0.2:2049"}, target.Addresses)

	_, err = f.Find("missing")
	assert.Error(t, err)
}

func TestTargetToConfig(t *testing.T) {
	f, err := Load(writeSample(t))
	require.NoError(t, err)

	target, err := f.Find("prod-nas")
	require.NoError(t, err)

	cfg, err := target.ToConfig()
	require.NoError(t, err)
	assert.Equal(t, uint32(100003), cfg.Program)
	assert.Equal(t, uint32(3), cfg.Version)
	assert.Equal(t, uint32(2), cfg.MinVers)
	assert.True(t, cfg.Soft)
	assert.Equal(t, 2*time.Second, cfg.Timeo)
	require.Len(t, cfg.Locations, 2)
	assert.Equal(t, "tcp", cfg.Locations[0].Network)
	assert.Equal(t, "10.0.0.1:2049", cfg.Locations[0].Addr)
}

func TestTargetToConfigDefaults(t *testing.T) {
	f, err := Load(writeSample(t))
	require.NoError(t, err)

	target, err := f.Find("bare")
	require.NoError(t, err)

	cfg, err := target.ToConfig()
	require.NoError(t, err)
	assert.Equal(t, uint32(100003), cfg.Program, "should fall back to DefaultConfig's program")
	require.Len(t, cfg.Locations, 1)
	assert.Equal(t, "tcp", cfg.Locations[0].Network, "empty target network should default to tcp")
}

func TestTargetToConfigInvalidTimeo(t *testing.T) {
	target := &Target{Name: "bad", Addresses: []string{"x:1"}, Timeo: "not-a-duration"}
	_, err := target.ToConfig()
	assert.Error(t, err)
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playbookd/sourcekit/internal/models"
)

func writeConnectors(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "connectors.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConnectors(t *testing.T) {
	path := writeConnectors(t, `
connectors:
  - name: prod-newrelic
    type: newrelic
    keys:
      - key_type: api_key
        value: NRAK-xyz
      - key_type: account_id
        value: "123456"
  - name: prod-pg
    type: sql
    keys:
      - key_type: host
        value: db.internal
`)

	connectors, err := LoadConnectors(path)
	require.NoError(t, err)
	require.Len(t, connectors, 2)

	nr := connectors[0]
	assert.Equal(t, models.SourceNewRelic, nr.Type)
	creds := nr.Credentials()
	assert.Equal(t, "NRAK-xyz", creds["api_key"])
	assert.Equal(t, "123456", creds["account_id"])
}

func TestLoadConnectors_DuplicateName(t *testing.T) {
	path := writeConnectors(t, `
connectors:
  - name: dup
    type: grafana
  - name: dup
    type: grafana
`)
	_, err := LoadConnectors(path)
	assert.ErrorContains(t, err, "duplicate connector name")
}

func TestLoadConnectors_MissingType(t *testing.T) {
	path := writeConnectors(t, "connectors:\n  - name: broken\n")
	_, err := LoadConnectors(path)
	assert.ErrorContains(t, err, "no type")
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 30000, cfg.Upstream.TimeoutMS)
	assert.Equal(t, 120, cfg.Upstream.SQLTimeoutSeconds)
}

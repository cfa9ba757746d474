package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://feed-api.cielo.finance/v1/", c.APIURL)
	assert.Equal(t, 3, c.MaxDepth)
	assert.Equal(t, 8, c.MaxEdges)
	assert.Equal(t, 50.0, c.Threshold)
	assert.Equal(t, "bearer_token.json", c.TokenFile)
	assert.Equal(t, 30*time.Second, c.RequestTimeout)
	assert.Equal(t, []string{"localhost:9092"}, c.KafkaBrokers)
	assert.Empty(t, c.RenewCommand)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("CIELO_MAX_DEPTH", "5")
	t.Setenv("CIELO_KAFKA_BROKER_ADDRESS", "k1:9092, k2:9092")
	t.Setenv("CIELO_RENEW_COMMAND", "node capture-token.js --headless")

	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 5, c.MaxDepth)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.KafkaBrokers)
	assert.Equal(t, []string{"node", "capture-token.js", "--headless"}, c.RenewCommand)
}

func TestYAMLFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "cielo.yaml")
	require.NoError(t, os.WriteFile(file, []byte("max_edges: 7\nworkers: 1\nrequest_timeout: 5s\n"), 0o600))

	c, err := Load(file)
	require.NoError(t, err)

	assert.Equal(t, 7, c.MaxEdges)
	assert.Equal(t, 1, c.Workers)
	assert.Equal(t, 5*time.Second, c.RequestTimeout)
}

func TestEnvFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "local.env")
	require.NoError(t, os.WriteFile(file, []byte("CIELO_EDGES_TOPIC=test.edges\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("CIELO_EDGES_TOPIC") })

	c, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, "test.edges", c.EdgesTopic)
}

func TestMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

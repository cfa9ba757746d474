package main

import (
	"path/filepath"
	"testing"

	"github.com/Laperavee/Cielo-API/cielo/conf"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindFlags(t *testing.T) {
	v := conf.NewViper()
	v.SetDefault(keyCSVDir, ".")
	cmd := &cobra.Command{}
	var configFile string
	bindFlags(cmd, v, &configFile)

	c := conf.FromViper(v)
	assert.Equal(t, ".", v.GetString(keyCSVDir))
	assert.Equal(t, "edges", c.CSVFilePrefix)
	assert.Equal(t, 1000000, c.CSVBatchSize)

	require.NoError(t, cmd.ParseFlags([]string{"--config", "cielo.env", "--dir", "/data/csv", "--prefix", "flows", "--batch-size", "500"}))
	c = conf.FromViper(v)
	assert.Equal(t, "cielo.env", configFile)
	assert.Equal(t, "/data/csv", v.GetString(keyCSVDir))
	assert.Equal(t, "flows", c.CSVFilePrefix)
	assert.Equal(t, 500, c.CSVBatchSize)
}

func TestRootCmdConfigError(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")})

	assert.Error(t, cmd.Execute())
}

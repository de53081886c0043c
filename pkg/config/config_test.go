package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replaystats/framecol/pkg/config"
	"github.com/replaystats/framecol/pkg/errors"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load(config.New(), "")
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Encoding)
	assert.Equal(t, config.FormatParquet, cfg.Sink.Format)
	assert.Equal(t, "none", cfg.Sink.Compression)
	assert.False(t, cfg.Sink.EnumNames)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "framecol.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
sink:
  format: flat
  compression: zstd
  level: 3
`), 0o644))

	cfg, err := config.Load(config.New(), path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, config.FormatFlat, cfg.Sink.Format)
	assert.Equal(t, "zstd", cfg.Sink.Compression)
	assert.Equal(t, 3, cfg.Sink.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(config.New(), filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestValidate(t *testing.T) {
	cfg := &config.Config{Sink: config.SinkConfig{Format: "hdf5"}}
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	cfg = &config.Config{Sink: config.SinkConfig{Format: config.FormatJSON, Level: 12}}
	assert.Error(t, cfg.Validate())

	cfg = &config.Config{Sink: config.SinkConfig{Format: config.FormatJSON, Level: 9}}
	assert.NoError(t, cfg.Validate())
}

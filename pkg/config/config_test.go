package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDefaults(t *testing.T) {
	cfg, err := Build("", nil)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:3000", cfg.Addr)
	assert.Equal(t, 0.10, cfg.Quantile)
	assert.False(t, cfg.Strict)
	assert.Equal(t, int64(200<<20), cfg.MaxUploadBytes)
}

func TestBuildFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "addr: 127.0.0.1:8080\nquantile: 0.25\nstrict: true\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Build(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.Addr)
	assert.Equal(t, 0.25, cfg.Quantile)
	assert.True(t, cfg.Strict)
}

func TestBuildEnvOverride(t *testing.T) {
	t.Setenv("BANKBOARD_QUANTILE", "0.2")

	cfg, err := Build("", nil)
	require.NoError(t, err)
	assert.Equal(t, 0.2, cfg.Quantile)
}

func TestBuildRejectsQuantileOutOfRange(t *testing.T) {
	t.Setenv("BANKBOARD_QUANTILE", "1.5")

	_, err := Build("", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quantile")
}

func TestBuildMissingExplicitFile(t *testing.T) {
	_, err := Build(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	require.Error(t, err)
}

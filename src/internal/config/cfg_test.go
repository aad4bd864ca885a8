package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaults(t *testing.T) {
	var cfg Cfg
	cfg.applyDefaults()

	assert.Equal(t, "Playlists", cfg.Cnt.PlaylistDirName)
	assert.Equal(t, "lost+found", cfg.Cnt.LostFoundName)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.Device.OpenTimeout)
}

func TestApplyDefaultsDoesNotOverrideExplicitValues(t *testing.T) {
	cfg := Cfg{
		Cnt: cnt{PlaylistDirName: "Mixes", LostFoundName: "Orphans"},
		LogLevel: "debug",
		Device:   device{OpenTimeout: 5 * time.Second},
	}
	cfg.applyDefaults()

	assert.Equal(t, "Mixes", cfg.Cnt.PlaylistDirName)
	assert.Equal(t, "Orphans", cfg.Cnt.LostFoundName)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.Device.OpenTimeout)
}

func TestValidateRejectsMissingLogDir(t *testing.T) {
	cfg := Cfg{LogDir: "", Device: device{OpenTimeout: time.Second}}
	err := cfg.Validate()
	assert.Error(t, err)
}

func TestValidateRejectsNegativeDeviceIndex(t *testing.T) {
	dir := t.TempDir()
	cfg := Cfg{LogDir: dir, Device: device{Index: -1, OpenTimeout: time.Second}}
	err := cfg.Validate()
	assert.Error(t, err)
}

func TestValidateRejectsNonPositiveOpenTimeout(t *testing.T) {
	dir := t.TempDir()
	cfg := Cfg{LogDir: dir, Device: device{OpenTimeout: 0}}
	err := cfg.Validate()
	assert.Error(t, err)
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := Cfg{LogDir: dir, Device: device{OpenTimeout: time.Second}}
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsNonexistentStagingDir(t *testing.T) {
	dir := t.TempDir()
	cfg := Cfg{
		LogDir: dir,
		Cnt:    cnt{StagingDir: dir + "/does-not-exist"},
		Device: device{OpenTimeout: time.Second},
	}
	err := cfg.Validate()
	assert.Error(t, err)
}

func TestValidateDirRejectsEmptyName(t *testing.T) {
	err := validateDir("", "log_dir")
	require.Error(t, err)
}

func TestValidateDirAcceptsExistingDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, validateDir(dir, "log_dir"))
}

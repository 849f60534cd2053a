package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTripWithEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "studly.yaml")
	cfg := Default()
	cfg.Feed.MinViable = 3
	require.NoError(t, Save(path, cfg))

	t.Setenv("STUDLY_TOKEN", "tok")
	t.Setenv("STUDLY_USER_ID", "")
	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Feed.MinViable)
	assert.Equal(t, 50, got.Feed.PageSize)
	assert.Equal(t, "tok", got.Credentials.Token)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	got, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Feed, got.Feed)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Feed.MinViable = 80
	assert.Error(t, cfg.Validate())
	cfg = Default()
	cfg.Feed.PollJitter = 1
	assert.Error(t, cfg.Validate())
	assert.NoError(t, Default().Validate())
}

func TestValidatePageSizeWithinServerLimit(t *testing.T) {
	cfg := Default()
	cfg.Feed.PageSize = MaxPageSize
	assert.NoError(t, cfg.Validate())
	cfg.Feed.PageSize = MaxPageSize + 1
	assert.ErrorContains(t, cfg.Validate(), "feed.pageSize")
}

func TestValidateRejectsZeroMinViable(t *testing.T) {
	cfg := Default()
	cfg.Feed.MinViable = 0
	assert.ErrorContains(t, cfg.Validate(), "feed.minViable")
	cfg.Feed.MinViable = 1
	assert.NoError(t, cfg.Validate())
}

func TestLoadRejectsOversizedPageFromEnv(t *testing.T) {
	t.Setenv("STUDLY_PAGE_SIZE", "200")
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadDotEnvs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.local"), []byte("STUDLY_DOTENV_PROBE=local\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("STUDLY_DOTENV_PROBE=shared\n"), 0o600))
	t.Setenv("STUDLY_DOTENV_PROBE", "")
	os.Unsetenv("STUDLY_DOTENV_PROBE")

	LoadDotEnvs(dir)
	assert.Equal(t, "local", os.Getenv("STUDLY_DOTENV_PROBE"))
}

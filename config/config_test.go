package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rios0rios0/charmci/config"
)

//nolint:tparallel // some subtests use t.Setenv which is incompatible with t.Parallel on parent
func TestResolveToken(t *testing.T) {
	t.Run("should return empty string for empty input", func(t *testing.T) {
		t.Parallel()

		// given
		raw := ""

		// when
		result := config.ResolveToken(raw)

		// then
		assert.Empty(t, result)
	})

	t.Run("should return inline token unchanged", func(t *testing.T) {
		t.Parallel()

		// given
		raw := "ghp_abc123xyz"

		// when
		result := config.ResolveToken(raw)

		// then
		assert.Equal(t, "ghp_abc123xyz", result)
	})

	t.Run("should expand environment variable reference", func(t *testing.T) {
		// NOTE: cannot use t.Parallel() with t.Setenv()

		// given
		t.Setenv("TEST_TOKEN_RESOLVE", "my-secret-token")
		raw := "${TEST_TOKEN_RESOLVE}"

		// when
		result := config.ResolveToken(raw)

		// then
		assert.Equal(t, "my-secret-token", result)
	})

	t.Run("should return empty for unset env var", func(t *testing.T) {
		t.Parallel()

		// given
		raw := "${DEFINITELY_NOT_SET_VAR_12345}"

		// when
		result := config.ResolveToken(raw)

		// then
		assert.Empty(t, result)
	})

	t.Run("should read token from file when path exists", func(t *testing.T) {
		t.Parallel()

		// given
		tmpDir := t.TempDir()
		tokenFile := filepath.Join(tmpDir, "token.key")
		err := os.WriteFile(tokenFile, []byte("  file-based-token  \n"), 0o600)
		require.NoError(t, err)

		// when
		result := config.ResolveToken(tokenFile)

		// then
		assert.Equal(t, "file-based-token", result)
	})
}

func TestValidate(t *testing.T) {
	t.Parallel()

	t.Run("should fail when username is empty", func(t *testing.T) {
		t.Parallel()

		// given
		cfg := &config.Config{
			Credentials: config.Credentials{Token: "tok"},
			Modules:     []string{"main.tf"},
			Concurrency: 1,
		}

		// when
		err := config.Validate(cfg)

		// then
		require.Error(t, err)
		assert.Contains(t, err.Error(), "username is required")
	})

	t.Run("should fail when token is empty", func(t *testing.T) {
		t.Parallel()

		// given
		cfg := &config.Config{
			Credentials: config.Credentials{Username: "bot"},
			Modules:     []string{"main.tf"},
			Concurrency: 1,
		}

		// when
		err := config.Validate(cfg)

		// then
		require.Error(t, err)
		assert.Contains(t, err.Error(), "token is required")
	})

	t.Run("should fail when modules list is empty", func(t *testing.T) {
		t.Parallel()

		// given
		cfg := &config.Config{
			Credentials: config.Credentials{Username: "bot", Token: "tok"},
			Concurrency: 1,
		}

		// when
		err := config.Validate(cfg)

		// then
		require.Error(t, err)
		assert.Contains(t, err.Error(), "at least one manifest entry")
	})

	t.Run("should pass with valid configuration", func(t *testing.T) {
		t.Parallel()

		// given
		cfg := &config.Config{
			Credentials: config.Credentials{Username: "bot", Token: "ghp_token"},
			Modules:     []string{"modules/kubeflow/applications.tf"},
			Concurrency: 4,
		}

		// when
		err := config.Validate(cfg)

		// then
		require.NoError(t, err)
	})
}

//nolint:tparallel // some subtests use t.Setenv which is incompatible with t.Parallel on parent
func TestLoad(t *testing.T) {
	t.Run("should load valid config file with defaults applied", func(t *testing.T) {
		t.Parallel()

		// given
		tmpDir := t.TempDir()
		cfgFile := filepath.Join(tmpDir, "charmci.yaml")
		content := `
credentials:
  username: "release-bot"
  token: "ghp_test_token"
modules:
  - "modules/kubeflow/applications.tf"
  - "modules/mlflow/main.tf"
blacklist:
  - "https://github.com/canonical/mysql-k8s-operator"
`
		err := os.WriteFile(cfgFile, []byte(content), 0o600)
		require.NoError(t, err)

		// when
		cfg, err := config.Load(cfgFile)

		// then
		require.NoError(t, err)
		assert.Equal(t, "release-bot", cfg.Credentials.Username)
		assert.Equal(t, "ghp_test_token", cfg.Credentials.Token)
		assert.Len(t, cfg.Modules, 2)
		assert.Len(t, cfg.Blacklist, 1)
		assert.NotEmpty(t, cfg.Workdir)
		assert.Equal(t, 3, cfg.Retry.Attempts)
		assert.Equal(t, 4, cfg.Concurrency)
	})

	t.Run("should parse retry policy durations", func(t *testing.T) {
		t.Parallel()

		// given
		tmpDir := t.TempDir()
		cfgFile := filepath.Join(tmpDir, "charmci.yaml")
		content := `
credentials:
  username: "bot"
  token: "tok"
modules: ["main.tf"]
retry:
  attempts: 5
  min_wait: 2s
  max_wait: 1m
concurrency: 8
`
		err := os.WriteFile(cfgFile, []byte(content), 0o600)
		require.NoError(t, err)

		// when
		cfg, err := config.Load(cfgFile)

		// then
		require.NoError(t, err)
		assert.Equal(t, 5, cfg.Retry.Attempts)
		assert.Equal(t, 2*time.Second, time.Duration(cfg.Retry.MinWait))
		assert.Equal(t, time.Minute, time.Duration(cfg.Retry.MaxWait))
		assert.Equal(t, 8, cfg.Concurrency)
	})

	t.Run("should expand env vars in token during load", func(t *testing.T) {
		// NOTE: cannot use t.Parallel() with t.Setenv()

		// given
		t.Setenv("TEST_LOAD_TOKEN", "expanded-token-value")
		tmpDir := t.TempDir()
		cfgFile := filepath.Join(tmpDir, "charmci.yaml")
		content := `
credentials:
  username: "bot"
  token: "${TEST_LOAD_TOKEN}"
modules: ["main.tf"]
`
		err := os.WriteFile(cfgFile, []byte(content), 0o600)
		require.NoError(t, err)

		// when
		cfg, err := config.Load(cfgFile)

		// then
		require.NoError(t, err)
		assert.Equal(t, "expanded-token-value", cfg.Credentials.Token)
	})

	t.Run("should fail for nonexistent config file", func(t *testing.T) {
		t.Parallel()

		// given
		path := "/tmp/nonexistent_charmci_config_xyz.yaml"

		// when
		cfg, err := config.Load(path)

		// then
		require.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "failed to read config file")
	})

	t.Run("should fail for invalid YAML", func(t *testing.T) {
		t.Parallel()

		// given
		tmpDir := t.TempDir()
		cfgFile := filepath.Join(tmpDir, "bad.yaml")
		err := os.WriteFile(cfgFile, []byte("{{{{invalid yaml"), 0o600)
		require.NoError(t, err)

		// when
		cfg, err := config.Load(cfgFile)

		// then
		require.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "failed to parse config file")
	})

	t.Run("should fail validation when credentials missing", func(t *testing.T) {
		t.Parallel()

		// given
		tmpDir := t.TempDir()
		cfgFile := filepath.Join(tmpDir, "empty.yaml")
		err := os.WriteFile(cfgFile, []byte(`modules: ["main.tf"]`), 0o600)
		require.NoError(t, err)

		// when
		cfg, err := config.Load(cfgFile)

		// then
		require.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "username is required")
	})
}

func TestFindConfigFile(t *testing.T) {
	t.Run("should return error when no config file exists", func(t *testing.T) {
		// given
		tmpDir := t.TempDir()
		t.Chdir(tmpDir)

		// when
		path, err := config.FindConfigFile()

		// then
		require.Error(t, err)
		assert.Empty(t, path)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("should find charmci.yaml in current directory", func(t *testing.T) {
		// given
		tmpDir := t.TempDir()
		t.Chdir(tmpDir)

		cfgFile := filepath.Join(tmpDir, "charmci.yaml")
		require.NoError(t, os.WriteFile(cfgFile, []byte("modules: []"), 0o600))

		// when
		path, err := config.FindConfigFile()

		// then
		require.NoError(t, err)
		assert.Equal(t, "charmci.yaml", path)
	})

	t.Run("should find .charmci.yaml in current directory", func(t *testing.T) {
		// given
		tmpDir := t.TempDir()
		t.Chdir(tmpDir)

		cfgFile := filepath.Join(tmpDir, ".charmci.yaml")
		require.NoError(t, os.WriteFile(cfgFile, []byte("modules: []"), 0o600))

		// when
		path, err := config.FindConfigFile()

		// then
		require.NoError(t, err)
		assert.Equal(t, ".charmci.yaml", path)
	})
}

package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("missing signing secret", func(t *testing.T) {
		_, err := Load("")
		assert.Error(t, err, "expected an error when no signing secret is configured")
	})

	t.Run("signing secret from environment", func(t *testing.T) {
		secret := base64.StdEncoding.EncodeToString([]byte("super secret key"))
		t.Setenv("LANCHAT_AUTH_SIGNING_SECRET", secret)

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, []byte("super secret key"), cfg.SigningKey)
		assert.Equal(t, "0.0.0.0:3030", cfg.ServerAddr, "expected the default listen address")
		assert.Equal(t, "sqlite3", cfg.DatabaseDriver, "expected the default driver")
	})

	t.Run("invalid signing secret encoding", func(t *testing.T) {
		t.Setenv("LANCHAT_AUTH_SIGNING_SECRET", "not base64!!!")

		_, err := Load("")
		assert.Error(t, err)
	})

	t.Run("config file overrides defaults", func(t *testing.T) {
		secret := base64.StdEncoding.EncodeToString([]byte("super secret key"))
		contents := `
server:
  addr: "127.0.0.1:9000"
  allowed_origins:
    - "http://localhost:5173"
database:
  driver: postgres
  dsn: "host=localhost user=lanchat dbname=lanchat sslmode=disable"
auth:
  signing_secret: "` + secret + `"
`
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1:9000", cfg.ServerAddr)
		assert.Equal(t, "postgres", cfg.DatabaseDriver)
		assert.Equal(t, []string{"http://localhost:5173"}, cfg.AllowedOrigins)
	})

	t.Run("missing config file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}

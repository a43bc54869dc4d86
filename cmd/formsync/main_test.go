package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/formsync/pkg/config"
	"github.com/ajitpratap0/formsync/pkg/connector/core"
	"github.com/ajitpratap0/formsync/pkg/errors"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(viper.New())
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := loadConfig(viper.New())
		require.NoError(t, err)
		assert.Equal(t, config.BackendMemory, cfg.Storage.Backend)
	})

	t.Run("env overrides file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "formsync.yaml")
		require.NoError(t, os.WriteFile(path, []byte("log:\n  level: warn\nschema_cache:\n  ttl: 10m\n  stale_ceiling: 1h\n"), 0o600))

		t.Setenv("FORMSYNC_LOG_LEVEL", "debug")
		t.Setenv("FORMSYNC_SCHEMA_CACHE_STRICT", "true")

		v := viper.New()
		newRootCmd(v)
		v.Set("config", path)

		cfg, err := loadConfig(v)
		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.Log.Level)
		assert.Equal(t, 10*time.Minute, cfg.SchemaCache.TTL)
		assert.True(t, cfg.SchemaCache.Strict)
	})

	t.Run("invalid backend", func(t *testing.T) {
		t.Setenv("FORMSYNC_STORAGE_BACKEND", "etcd")
		v := viper.New()
		newRootCmd(v)

		_, err := loadConfig(v)
		assert.ErrorContains(t, err, "unknown storage backend")
	})
}

func TestParseCredentials(t *testing.T) {
	creds, err := parseCredentials([]string{"url=https://acme.ipzmarketing.com", "key=a=b"})
	require.NoError(t, err)
	assert.Equal(t, core.Credentials{"url": "https://acme.ipzmarketing.com", "key": "a=b"}, creds)

	_, err = parseCredentials([]string{"nokey"})
	assert.True(t, errors.IsKind(err, errors.KindValidation))
}

func TestCredentialsFromEnv(t *testing.T) {
	t.Setenv("FORMSYNC_CREDS_MAILRELAY_URL", "https://acme.ipzmarketing.com")
	t.Setenv("FORMSYNC_CREDS_MAILRELAY_KEY", "from-env")

	v := viper.New()
	newRootCmd(v)
	creds := core.Credentials{"key": "explicit"}
	require.NoError(t, credentialsFromEnv(v, "mailrelay", creds))

	assert.Equal(t, "https://acme.ipzmarketing.com", creds["url"])
	assert.Equal(t, "explicit", creds["key"])

	assert.Error(t, credentialsFromEnv(v, "nope", core.Credentials{}))
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "formsync v"+version)
}

func TestProvidersCommand(t *testing.T) {
	t.Setenv("FORMSYNC_LOG_LEVEL", "error")
	out, err := execute(t, "providers")
	require.NoError(t, err)
	for _, id := range []string{"drip", "hubspot", "icontact", "keap", "mailrelay", "sendfox", "zoho"} {
		assert.Contains(t, out, id)
	}
	assert.Contains(t, out, "not connected")
}

func TestSubmitRequiresConnection(t *testing.T) {
	t.Setenv("FORMSYNC_LOG_LEVEL", "error")
	path := filepath.Join(t.TempDir(), "submission.json")
	doc := `{"provider":"drip","email":"a@b.com","target_list_id":"42"}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	out, err := execute(t, "submit", path)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindAuth))
	assert.Contains(t, out, `"state": "failed"`)
}

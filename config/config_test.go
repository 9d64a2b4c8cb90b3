package config_test

import (
	"compress/zlib"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/digitorus/pdfreport/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pdfreport.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestConfig(t *testing.T) {
	const configContent = `
[report]
font_path = "fonts/DejaVuSans.ttf"
compression = "best"
log_level = "debug"

[storage]
driver = "sqlite3"
dsn = "file:attachments.db"

[server]
addr = "127.0.0.1:9090"

[seal]
cert = "seal.crt"
key = "seal.key"
tsa_url = "https://tsa.example.org/tsr"

[batch]
concurrency = 8
`

	c, err := config.Load(writeConfig(t, configContent))
	require.NoError(t, err)

	assert.Equal(t, "fonts/DejaVuSans.ttf", c.Report.FontPath)
	assert.Equal(t, zlib.BestCompression, c.Report.CompressLevel())
	assert.Equal(t, slog.LevelDebug, c.Report.Level())
	assert.Equal(t, "pdfreport", c.Report.Producer)
	assert.Equal(t, "sqlite3", c.Storage.Driver)
	assert.Equal(t, "file:attachments.db", c.Storage.DSN)
	assert.Equal(t, "attachments", c.Storage.Table)
	assert.Equal(t, "127.0.0.1:9090", c.Server.Addr)
	assert.True(t, c.Seal.Sealing())
	assert.Equal(t, 8, c.Batch.Concurrency)
}

func TestDefault(t *testing.T) {
	c := config.Default()
	assert.NoError(t, c.ValidateFields())
	assert.Equal(t, zlib.DefaultCompression, c.Report.CompressLevel())
	assert.Equal(t, slog.LevelInfo, c.Report.Level())
	assert.False(t, c.Seal.Sealing())
	assert.Equal(t, "file", c.Seal.KeyProvider)
}

func TestValidation(t *testing.T) {
	const configContent = ``

	var c config.Config
	if _, err := toml.Decode(configContent, &c); err != nil {
		t.Error(err)
	}

	err := c.ValidateFields()
	assert.NotNil(t, err)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown key", "[report]\ncolour = \"red\""},
		{"bad compression", "[report]\ncompression = \"maximum\""},
		{"bad driver", "[storage]\ndriver = \"s3\""},
		{"sqlite without dsn", "[storage]\ndriver = \"sqlite3\""},
		{"dir without path", "[storage]\ndir = \"\""},
		{"bad table", "[storage]\ntable = \"x; drop\""},
		{"bad addr", "[server]\naddr = \"8080\""},
		{"cert without key", "[seal]\ncert = \"seal.crt\""},
		{"tsa without cert", "[seal]\ntsa_url = \"https://tsa.example.org\""},
		{"unknown key provider", "[seal]\ncert = \"seal.crt\"\nkey_provider = \"vault\""},
		{"remote key without cert", "[seal]\nkey_provider = \"gcp\"\nkey_id = \"k\""},
		{"aws without region", "[seal]\ncert = \"seal.crt\"\nkey_provider = \"aws\"\nkey_id = \"alias/seal\""},
		{"azure without token", "[seal]\ncert = \"seal.crt\"\nkey_provider = \"azure\"\nkey_id = \"seal\"\nendpoint = \"https://v.vault.azure.net\""},
		{"pkcs11 without module", "[seal]\ncert = \"seal.crt\"\nkey_provider = \"pkcs11\""},
		{"concurrency", "[batch]\nconcurrency = 0"},
		{"malformed", "[report"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestKeyProviders(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"aws", "key_provider = \"aws\"\nkey_id = \"alias/report-seal\"\nregion = \"eu-central-1\""},
		{"azure", "key_provider = \"azure\"\nkey_id = \"report-seal\"\nendpoint = \"https://seal.vault.azure.net\"\nauth_token = \"ey\""},
		{"gcp", "key_provider = \"gcp\"\nkey_id = \"projects/p/locations/l/keyRings/r/cryptoKeys/k/cryptoKeyVersions/1\""},
		{"pkcs11", "key_provider = \"pkcs11\"\nmodule = \"/usr/lib/softhsm/libsofthsm2.so\"\ntoken_label = \"seal\"\npin = \"1234\""},
		{"csc", "key_provider = \"csc\"\nkey_id = \"cred\"\nendpoint = \"https://csc.example.org/csc/v1\"\nauth_token = \"Bearer ey\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := config.Load(writeConfig(t, "[seal]\ncert = \"seal.crt\"\n"+tt.content))
			require.NoError(t, err)
			assert.Equal(t, tt.name, c.Seal.KeyProvider)
			assert.True(t, c.Seal.Sealing())
		})
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoadPartial(t *testing.T) {
	c, err := config.Load(writeConfig(t, "[server]\naddr = \":9000\""))
	require.NoError(t, err)
	assert.Equal(t, ":9000", c.Server.Addr)
	assert.Equal(t, "dir", c.Storage.Driver)
	assert.Equal(t, 4, c.Batch.Concurrency)
}

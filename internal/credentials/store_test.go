package credentials

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/termengine/internal/transport"
)

const yamlProfiles = `
profiles:
  prod:
    user: ops
    key_file: %KEY%
    passphrase_env: TEST_PROD_PASS
    hosts: ["*.prod.example.com"]
  lab:
    user: root
    password_env: TEST_LAB_PASSWORD
    agent: true
    hosts: ["lab{1,2}", "10.0.*"]
`

const tomlProfiles = `
[profiles.lab]
user = "root"
password_env = "TEST_LAB_PASSWORD"
hosts = ["lab*"]
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func loadYAML(t *testing.T) (*Store, string) {
	t.Helper()
	key := writeFile(t, "id_test", "-----BEGIN KEY-----\n")
	data := []byte(strings.ReplaceAll(yamlProfiles, "%KEY%", key))
	s, err := Parse(data, FormatYAML, nil)
	require.NoError(t, err)
	return s, key
}

func TestResolveProfile(t *testing.T) {
	t.Setenv("TEST_PROD_PASS", "s3cret")
	s, _ := loadYAML(t)

	cred, err := s.Resolve(context.Background(), "prod")
	require.NoError(t, err)

	assert.Equal(t, "ops", cred.User)
	assert.Equal(t, "-----BEGIN KEY-----\n", string(cred.PrivateKey))
	assert.Equal(t, "s3cret", cred.Passphrase)
	assert.Empty(t, cred.Password)
	assert.False(t, cred.UseAgent)
	assert.Equal(t, []string{"lab", "prod"}, s.Names())
}

func TestSecretsAreReadEachTime(t *testing.T) {
	s, key := loadYAML(t)
	t.Setenv("TEST_PROD_PASS", "first")

	first, err := s.Resolve(context.Background(), "prod")
	require.NoError(t, err)

	t.Setenv("TEST_PROD_PASS", "second")
	require.NoError(t, os.WriteFile(key, []byte("rotated"), 0o600))

	second, err := s.Resolve(context.Background(), "prod")
	require.NoError(t, err)

	assert.Equal(t, "first", first.Passphrase)
	assert.Equal(t, "second", second.Passphrase)
	assert.Equal(t, "rotated", string(second.PrivateKey))
}

func TestResolveErrors(t *testing.T) {
	s, _ := loadYAML(t)
	ctx := context.Background()

	_, err := s.Resolve(ctx, "nope")
	assert.ErrorIs(t, err, transport.ErrUnknownCredential)

	_, err = s.Resolve(ctx, "prod")
	assert.ErrorContains(t, err, "TEST_PROD_PASS")

	cred, err := s.Resolve(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, transport.Credential{}, cred)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = s.Resolve(cancelled, "lab")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResolveHost(t *testing.T) {
	t.Setenv("TEST_PROD_PASS", "p")
	t.Setenv("TEST_LAB_PASSWORD", "hunter2")
	s, _ := loadYAML(t)
	ctx := context.Background()

	tests := []struct {
		user, host string
		wantUser   string
		wantErr    bool
	}{
		{"", "db01.prod.example.com", "ops", false},
		{"", "DB01.Prod.Example.com", "ops", false},
		{"", "lab2", "root", false},
		{"", "10.0.3", "root", false},
		{"ops", "lab1", "", true},
		{"", "lab3", "", true},
		{"", "example.com", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.user+"@"+tt.host, func(t *testing.T) {
			cred, err := s.ResolveHost(ctx, tt.user, tt.host)
			if tt.wantErr {
				assert.ErrorIs(t, err, transport.ErrUnknownCredential)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantUser, cred.User)
		})
	}
}

func TestLoadTOML(t *testing.T) {
	t.Setenv("TEST_LAB_PASSWORD", "hunter2")
	path := writeFile(t, "creds.toml", tomlProfiles)

	s, err := Load(path, nil)
	require.NoError(t, err)

	cred, err := s.Resolve(context.Background(), "lab")
	require.NoError(t, err)
	assert.Equal(t, "root", cred.User)
	assert.Equal(t, "hunter2", cred.Password)
}

func TestLoadRejects(t *testing.T) {
	_, err := Load(writeFile(t, "creds.json", "{}"), nil)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Load(writeFile(t, "creds.yaml", "profiles: [1, 2"), nil)
	assert.Error(t, err)

	_, err = Parse([]byte("profiles:\n  bad:\n    hosts: [\"[unclosed\"]\n"), FormatYAML, nil)
	assert.ErrorContains(t, err, "invalid host pattern")

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"), nil)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := expandHome("~/.ssh/id_ed25519")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".ssh/id_ed25519"), got)

	got, err = expandHome("~bob/key")
	require.NoError(t, err)
	assert.Equal(t, "~bob/key", got)
}

func TestStoreSatisfiesResolvers(t *testing.T) {
	var _ transport.CredentialResolver = (*Store)(nil)
	var _ transport.HostCredentialResolver = (*Store)(nil)
}

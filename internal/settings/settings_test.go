package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileStartsEmpty(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "settings.yaml"))
	require.NoError(t, s.Load())

	addr, serial, code := s.PrinterConnection()
	assert.Empty(t, addr)
	assert.Empty(t, serial)
	assert.Empty(t, code)
	assert.Empty(t, s.IgnoredCodes())
}

func TestLoadExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	content := `
printer:
  address: 192.168.1.50
  serial: 01S00C123400042
  access_code: "12345678"
ignored_codes:
  - HMS_0300_0D00_0001_000B
admin:
  user: admin
  password_hash: $2a$10$abcdefghijklmnopqrstuv
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	s := NewStore(path)
	require.NoError(t, s.Load())

	addr, serial, code := s.PrinterConnection()
	assert.Equal(t, "192.168.1.50", addr)
	assert.Equal(t, "01S00C123400042", serial)
	assert.Equal(t, "12345678", code)
	assert.Equal(t, []string{"HMS_0300_0D00_0001_000B"}, s.IgnoredCodes())
	assert.Equal(t, "admin", s.Current().Admin.User)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("printer: [broken\n"), 0o600))

	err := NewStore(path).Load()
	assert.ErrorContains(t, err, "unmarshal settings")
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	s := NewStore(path)
	require.NoError(t, s.Load())

	next := Settings{
		Printer: PrinterSettings{
			Address:    "10.0.0.9",
			Serial:     "01P00A987600011",
			AccessCode: "secret",
		},
		IgnoredCodes: []string{"HMS_0C00_0300_0002_0005"},
	}
	require.NoError(t, s.Save(next))

	// In-memory view updated immediately.
	addr, _, _ := s.PrinterConnection()
	assert.Equal(t, "10.0.0.9", addr)

	// And a fresh store sees the same thing from disk.
	reloaded := NewStore(path)
	require.NoError(t, reloaded.Load())
	assert.Equal(t, next, reloaded.Current())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// No temp file left behind.
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestCurrentReturnsCopy(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "settings.yaml"))
	require.NoError(t, s.Save(Settings{IgnoredCodes: []string{"HMS_0001_0002_0003_0004"}}))

	got := s.Current()
	got.IgnoredCodes[0] = "mutated"

	assert.Equal(t, []string{"HMS_0001_0002_0003_0004"}, s.IgnoredCodes())
}

package crypto

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadSigningKeyFromKeystore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "admin.keystore")
	key, err := GeneratePrivateKey()
	require.NoError(t, err)
	require.NoError(t, SaveToKeystore(path, key, "secret"))

	loaded, err := LoadSigningKey(path, func() (string, error) { return "secret", nil })
	require.NoError(t, err)
	require.Equal(t, key.PubKey().Address().Wallet(), loaded.PubKey().Address().Wallet())

	_, err = LoadSigningKey(path, func() (string, error) { return "wrong", nil })
	require.Error(t, err)

	_, err = LoadSigningKey(path, nil)
	require.Error(t, err)
}

func TestLoadSigningKeyFromRawFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.key")
	key, err := GeneratePrivateKey()
	require.NoError(t, err)
	require.NoError(t, SaveRawKey(path, key))

	loaded, err := LoadSigningKey(path, func() (string, error) {
		return "", errors.New("raw keys must not prompt")
	})
	require.NoError(t, err)
	require.Equal(t, key.Bytes(), loaded.Bytes())
}

func TestLoadSigningKeyMissingFile(t *testing.T) {
	_, err := LoadSigningKey(filepath.Join(t.TempDir(), "missing.key"), nil)
	require.ErrorContains(t, err, "generate-key")
}

package crypto

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/accounts/keystore"
)

// PassphraseFunc resolves the passphrase for an encrypted key file on demand.
type PassphraseFunc func() (string, error)

// SaveToKeystore writes the key as an Ethereum v3 keystore file at path. The
// parent directory is created with 0700 permissions when missing.
func SaveToKeystore(path string, key *PrivateKey, passphrase string) error {
	if key == nil {
		return errors.New("crypto: nil private key")
	}
	if path == "" {
		return errors.New("crypto: empty keystore path")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmpDir, err := os.MkdirTemp(dir, "keystore-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmpDir)

	ks := keystore.NewKeyStore(tmpDir, keystore.LightScryptN, keystore.LightScryptP)
	if _, err := ks.ImportECDSA(key.PrivateKey, passphrase); err != nil {
		return err
	}
	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return errors.New("crypto: failed to create keystore file")
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.Rename(filepath.Join(tmpDir, entries[0].Name()), path); err != nil {
		return err
	}
	return os.Chmod(path, 0o600)
}

// SaveRawKey writes the hex-encoded private key to path with 0600 permissions.
func SaveRawKey(path string, key *PrivateKey) error {
	if key == nil {
		return errors.New("crypto: nil private key")
	}
	return os.WriteFile(path, []byte(hex.EncodeToString(key.Bytes())), 0o600)
}

// LoadSigningKey reads either a v3 keystore (JSON) or a hex-encoded raw key
// file. The passphrase is only requested for keystore files.
func LoadSigningKey(path string, passphrase PassphraseFunc) (*PrivateKey, error) {
	if path == "" {
		return nil, errors.New("crypto: empty key path")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("key file %s not found; run lb-cli generate-key first", path)
		}
		return nil, fmt.Errorf("read key file %s: %w", path, err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("key file %s is empty", path)
	}
	if data[0] == '{' {
		if passphrase == nil {
			return nil, fmt.Errorf("key file %s is a keystore and needs a passphrase", path)
		}
		secret, err := passphrase()
		if err != nil {
			return nil, err
		}
		decrypted, err := keystore.DecryptKey(data, secret)
		if err != nil {
			return nil, fmt.Errorf("decrypt keystore %s: %w", path, err)
		}
		return &PrivateKey{PrivateKey: decrypted.PrivateKey}, nil
	}
	raw, err := hex.DecodeString(string(bytes.TrimPrefix(data, []byte("0x"))))
	if err != nil {
		return nil, fmt.Errorf("parse key file %s: %w", path, err)
	}
	return PrivateKeyFromBytes(raw)
}

package storage

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
)

// KVStore layers RLP-encoded values over a Database. Keys are namespaced so
// several components can share one backend.
type KVStore struct {
	db        Database
	namespace []byte
}

// NewKVStore wraps db, prefixing every key with namespace.
func NewKVStore(db Database, namespace string) *KVStore {
	return &KVStore{db: db, namespace: []byte(namespace)}
}

func (s *KVStore) key(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("kv: key must not be empty")
	}
	out := make([]byte, 0, len(s.namespace)+1+len(key))
	out = append(out, s.namespace...)
	out = append(out, '/')
	return append(out, key...), nil
}

// KVPut RLP encodes value and stores it under key.
func (s *KVStore) KVPut(key []byte, value interface{}) error {
	k, err := s.key(key)
	if err != nil {
		return err
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return s.db.Put(k, encoded)
}

// KVGet retrieves the value stored under key and decodes it into out. The
// boolean reports whether the key existed.
func (s *KVStore) KVGet(key []byte, out interface{}) (bool, error) {
	k, err := s.key(key)
	if err != nil {
		return false, err
	}
	data, err := s.db.Get(k)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// Open returns the Database for backend: "memory" or "leveldb" at path.
func Open(backend, path string) (Database, error) {
	switch backend {
	case "", "leveldb":
		if path == "" {
			return nil, fmt.Errorf("storage: leveldb backend requires a path")
		}
		return NewLevelDB(path)
	case "memory":
		return NewMemDB(), nil
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", backend)
	}
}

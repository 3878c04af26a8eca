package securestore

import (
	"fmt"

	bolt "go.etcd.io/bbolt"
)

var credentialsBucket = []byte("credentials")

// BoltStore is a device-local Store backed by a bbolt file. The file stands in
// for the OS keychain: 0600 permissions, one bucket, values opaque.
type BoltStore struct {
	db *bolt.DB
}

// OpenBolt opens (or creates) the credential store file.
func OpenBolt(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open secure store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(credentialsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to init secure store: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Get(user string) ([]byte, error) {
	var blob []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(credentialsBucket).Get([]byte(user))
		if v == nil {
			return ErrNotFound
		}
		blob = make([]byte, len(v))
		copy(blob, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return blob, nil
}

func (s *BoltStore) Set(user string, blob []byte, _ Accessibility) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(credentialsBucket).Put([]byte(user), blob)
	})
}

func (s *BoltStore) Delete(user string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(credentialsBucket).Delete([]byte(user))
	})
}

// Close closes the underlying file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

package credentials

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketCredentials = []byte("credentials")
	keyBearerToken    = []byte("bearer_token")
)

// BoltStore keeps the token in a bbolt database, for setups that share one state file
// between several tools.
type BoltStore struct {
	db *bolt.DB
}

func NewBoltStore(dbpath string, filemode os.FileMode) (*BoltStore, error) {
	dbpath, err := filepath.Abs(dbpath)
	if err != nil {
		return nil, err
	}

	db, err := bolt.Open(dbpath, filemode, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", dbpath)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCredentials)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Load() (string, error) {
	var token string
	err := s.db.View(func(tx *bolt.Tx) error {
		token = string(tx.Bucket(bucketCredentials).Get(keyBearerToken))
		return nil
	})
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", ErrNoCredential
	}
	return token, nil
}

func (s *BoltStore) Store(token string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCredentials).Put(keyBearerToken, []byte(token))
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

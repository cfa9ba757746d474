package credentials

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

type tokenFile struct {
	BearerToken string `json:"BEARER_TOKEN"`
}

// FileStore keeps the token in a small JSON document: {"BEARER_TOKEN": "..."}.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load() (string, error) {
	b, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return "", ErrNoCredential
	}
	if err != nil {
		return "", errors.Wrapf(err, "reading %s", s.path)
	}

	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", errors.Wrapf(err, "decoding %s", s.path)
	}
	if tf.BearerToken == "" {
		return "", ErrNoCredential
	}
	return tf.BearerToken, nil
}

// Store writes the token to a temporary file next to the target and renames it into place.
func (s *FileStore) Store(token string) error {
	b, err := json.Marshal(tokenFile{BearerToken: token})
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*")
	if err != nil {
		return errors.Wrapf(err, "creating temp file in %s", dir)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return errors.Wrap(err, "writing token")
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return errors.Wrap(err, "chmod token file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "closing token file")
	}

	return errors.Wrapf(os.Rename(tmp.Name(), s.path), "replacing %s", s.path)
}

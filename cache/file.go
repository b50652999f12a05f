package cache

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

const filePerm os.FileMode = 0666

// NewFilePersister returns a persister that keeps the snapshot in a single
// JSON file at path. Absence of the file is equivalent to an empty cache.
func NewFilePersister(path string) (*FilePersister, error) {
	if path == "" {
		return nil, errors.New("snapshot file path is empty")
	}

	return &FilePersister{path: path}, nil
}

// FilePersister stores the snapshot as a JSON object mapping cache key to
// cached value. Values are arbitrary bytes and serialize as base64 strings.
type FilePersister struct {
	path string
}

// Write replaces the snapshot file with the given mapping.
// The data is written to a temporary file in the same directory and renamed
// into place, so a concurrent reader never observes a partial write.
func (f *FilePersister) Write(snapshot map[string][]byte) error {
	data, err := json.MarshalIndent(snapshot, "", "\t")
	if err != nil {
		return errors.Wrap(err, "failed to marshal snapshot to json")
	}

	tmp, err := ioutil.TempFile(filepath.Dir(f.path), filepath.Base(f.path)+".tmp")
	if err != nil {
		return errors.Wrap(err, "failed to create temporary snapshot file")
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrap(err, "failed to write snapshot data")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "failed to close temporary snapshot file")
	}
	if err := os.Chmod(tmp.Name(), filePerm); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "failed to set snapshot file permissions")
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "failed to move snapshot into place")
	}

	return nil
}

// Read loads the snapshot file.
// A missing file yields an empty mapping; malformed content is an error the
// caller recovers from by starting empty.
func (f *FilePersister) Read() (map[string][]byte, error) {
	snapshot := make(map[string][]byte)

	data, err := ioutil.ReadFile(f.path)
	if os.IsNotExist(err) {
		return snapshot, nil
	}
	if err != nil {
		return snapshot, errors.Wrap(err, "failed to read snapshot file")
	}
	if len(data) == 0 {
		return snapshot, nil
	}

	if err := json.Unmarshal(data, &snapshot); err != nil {
		return make(map[string][]byte), errors.Wrap(err, "failed to parse snapshot file")
	}

	return snapshot, nil
}

// Remove deletes the snapshot file. Removing a file that does not exist
// succeeds.
func (f *FilePersister) Remove() error {
	err := os.Remove(f.path)
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to delete snapshot file")
	}

	return nil
}

package models

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
)

// BackendResult is one verdict as returned by the classification service.
type BackendResult struct {
	Digest     Digest     `json:"sha256"`
	Prediction Prediction `json:"prediction"`
}

// DisplayRecord is a verdict reconciled with the file it belongs to.
// An empty Filename means the name is unknown.
type DisplayRecord struct {
	Filename   string     `json:"filename,omitempty"`
	Digest     Digest     `json:"sha256"`
	Prediction Prediction `json:"prediction"`
}

// HasFilename reports whether the record was matched to a selected file.
func (r DisplayRecord) HasFilename() bool {
	return r.Filename != ""
}

// SelectedFile is one entry of a file selection. Open is called every time
// the content is needed, once for hashing and once for the upload.
type SelectedFile struct {
	Name string
	Size int64
	Open func() (io.ReadCloser, error)
}

// FileFromPath selects the file at path under its base name.
func FileFromPath(path string) SelectedFile {
	var size int64
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}
	return SelectedFile{
		Name: filepath.Base(path),
		Size: size,
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}
}

// FileFromBytes selects an in-memory blob.
func FileFromBytes(name string, data []byte) SelectedFile {
	return SelectedFile{
		Name: name,
		Size: int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

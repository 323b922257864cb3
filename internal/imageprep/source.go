package imageprep

import (
	"bytes"
	"io"
	"os"
)

// Source is an opaque image reference that can be opened more than once
// (a bounds pass followed by a full decode).
type Source interface {
	Open() (io.ReadCloser, error)
	String() string
}

// FileSource reads an image from a filesystem path.
type FileSource string

// Open opens the file.
func (f FileSource) Open() (io.ReadCloser, error) {
	return os.Open(string(f))
}

func (f FileSource) String() string { return string(f) }

// BytesSource serves an image already held in memory, e.g. an upload body.
type BytesSource struct {
	Name string
	Data []byte
}

// Open returns a reader over the bytes.
func (b BytesSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b.Data)), nil
}

func (b BytesSource) String() string {
	if b.Name == "" {
		return "upload"
	}
	return b.Name
}

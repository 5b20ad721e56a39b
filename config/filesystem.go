package config

import (
	"io/fs"
	"os"
)

// fileSystem is replaced with an fstest.MapFS in tests. Paths are passed to
// it unchanged, so absolute paths work with osFS.
var fileSystem fs.FS = osFS{}

type osFS struct{}

// Open implements fs.FS.
func (o osFS) Open(name string) (fs.File, error) {
	return os.Open(name)
}

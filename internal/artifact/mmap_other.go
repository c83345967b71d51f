//go:build !unix

package artifact

import (
	"errors"
	"os"
)

var errNoMmap = errors.New("artifact: mmap unsupported on this platform")

func mapFile(*os.File, int) ([]byte, error) { return nil, errNoMmap }

func unmapFile([]byte) error { return nil }

package util

import (
	"io/fs"
	"testing/fstest"
)

// MapFS builds an in-memory fs.FS from path to content. Paths use forward
// slashes and must not start with "/".
func MapFS(m map[string]string) fs.FS {
	m0 := make(map[string]*fstest.MapFile, len(m))
	for p, f := range m {
		m0[p] = &fstest.MapFile{Data: []byte(f)}
	}
	return fstest.MapFS(m0)
}

// MapFSBytes is MapFS for content that is already a byte slice.
func MapFSBytes(m map[string][]byte) fs.FS {
	m0 := make(map[string]*fstest.MapFile, len(m))
	for p, f := range m {
		m0[p] = &fstest.MapFile{Data: f}
	}
	return fstest.MapFS(m0)
}

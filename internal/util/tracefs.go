package util

import (
	"io/fs"

	"github.com/pikapkg/snowpack/internal/logging"
)

// TraceFS logs every open of the wrapped file system. It is a debugging
// aid for mount and scan problems, switched on by the debug log level.
type TraceFS struct {
	fsys fs.FS
	log  *logging.Logger
}

func NewTraceFS(fsys fs.FS, log *logging.Logger) fs.FS {
	return &TraceFS{fsys: fsys, log: log}
}

func (t *TraceFS) Open(p string) (fs.File, error) {
	f, err := t.fsys.Open(p)
	if err != nil {
		t.log.Debugf("open %s: %v", p, err)
		return f, err
	}
	if fi, err := f.Stat(); err == nil {
		if fi.IsDir() {
			t.log.Debugf("open %s: dir", p)
		} else {
			t.log.Debugf("open %s: %d byte(s)", p, fi.Size())
		}
	}
	return f, nil
}

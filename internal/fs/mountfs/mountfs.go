// This is based on testing/fstest, go1.25.2:
// Copyright 2020 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// Altered to take a map of prefixes to fs.FS instances,
// allowing us to simplify the code a little.

package mountfs

import (
	"io"
	"io/fs"
	"path"
	"slices"
	"strings"
	"time"
)

// A MountFS presents existing [fs.FS] instances under path prefixes, the
// way mounted source directories appear under their URLs. Parent
// directories of the mount points are synthesized.
//
// File system operations must not run concurrently with changes to the
// map, which would be a race.
type MountFS map[string]fs.FS

func New(m map[string]fs.FS) MountFS {
	return m
}

var _ fs.FS = MountFS(nil)

// Open opens the named file in whichever mounted file system covers it.
func (fsys MountFS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	if mounted := fsys[name]; mounted != nil {
		return &mountDir{path: name, dirInfo: dirInfo{name: path.Base(name)}, fsys: mounted}, nil
	}
	for prefix, mounted := range fsys {
		if strings.HasPrefix(name, prefix+"/") {
			return mounted.Open(name[len(prefix)+1:])
		}
	}

	// Directory, possibly synthesized.
	synthesize := make(map[string]bool)
	if name == "." {
		for prefix := range fsys {
			if i := strings.Index(prefix, "/"); i < 0 {
				if prefix != "." {
					synthesize[prefix] = true
				}
			} else {
				synthesize[prefix[:i]] = true
			}
		}
	} else {
		dir := name + "/"
		for prefix := range fsys {
			if strings.HasPrefix(prefix, dir) {
				elem := prefix[len(dir):]
				if i := strings.Index(elem, "/"); i >= 0 {
					elem = elem[:i]
				}
				synthesize[elem] = true
			}
		}
		// A name that is neither a mount point nor a parent of one
		// does not exist.
		if len(synthesize) == 0 {
			return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
		}
	}

	list := make([]dirInfo, 0, len(synthesize))
	for elem := range synthesize {
		list = append(list, dirInfo{name: elem})
	}
	slices.SortFunc(list, func(a, b dirInfo) int {
		return strings.Compare(a.name, b.name)
	})

	elem := name
	if i := strings.LastIndex(name, "/"); i >= 0 {
		elem = name[i+1:]
	}
	return &synthDir{path: name, dirInfo: dirInfo{name: elem}, entry: list}, nil
}

// A dirInfo implements fs.FileInfo and fs.DirEntry for a synthesized
// directory.
type dirInfo struct {
	name string
}

func (i *dirInfo) Name() string               { return path.Base(i.name) }
func (i *dirInfo) Size() int64                { return 0 }
func (i *dirInfo) Mode() fs.FileMode          { return fs.ModeDir | 0555 }
func (i *dirInfo) Type() fs.FileMode          { return fs.ModeDir }
func (i *dirInfo) ModTime() time.Time         { return time.Time{} }
func (i *dirInfo) IsDir() bool                { return true }
func (i *dirInfo) Sys() any                   { return nil }
func (i *dirInfo) Info() (fs.FileInfo, error) { return i, nil }

func (i *dirInfo) String() string {
	return fs.FormatFileInfo(i)
}

// A synthDir is a synthesized directory open for reading.
type synthDir struct {
	path string
	dirInfo
	entry  []dirInfo
	offset int
}

func (d *synthDir) Stat() (fs.FileInfo, error) { return &d.dirInfo, nil }
func (*synthDir) Close() error                 { return nil }
func (d *synthDir) Read([]byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.path, Err: fs.ErrInvalid}
}

func (d *synthDir) ReadDir(count int) ([]fs.DirEntry, error) {
	n := len(d.entry) - d.offset
	if n == 0 && count > 0 {
		return nil, io.EOF
	}
	if count > 0 && n > count {
		n = count
	}
	list := make([]fs.DirEntry, n)
	for i := range list {
		list[i] = &d.entry[d.offset+i]
	}
	d.offset += n
	return list, nil
}

// A mountDir is a mount point's root directory open for reading.
type mountDir struct {
	path string
	dirInfo
	fsys fs.FS
}

func (*mountDir) Close() error                 { return nil }
func (d *mountDir) Stat() (fs.FileInfo, error) { return &d.dirInfo, nil }
func (d *mountDir) Read([]byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.path, Err: fs.ErrInvalid}
}

func (d *mountDir) ReadDir(int) ([]fs.DirEntry, error) {
	return fs.ReadDir(d.fsys, ".") // NB: We're ignoring the count, for our usage, that's OK.
}

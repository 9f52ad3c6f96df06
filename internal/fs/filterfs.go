package fs

import (
	"io/fs"
	"strings"

	"github.com/gobwas/glob"
)

// FilterFS wraps an fs.FS and hides entries according to glob patterns.
// Patterns are matched against slash-separated paths relative to the root
// of the wrapped filesystem, with '/' as the only separator.
type FilterFS struct {
	inner    fs.FS
	included []glob.Glob
	excluded []glob.Glob
	pruned   []glob.Glob
}

var (
	_ fs.FS        = (*FilterFS)(nil)
	_ fs.ReadDirFS = (*FilterFS)(nil)
)

// NewFilterFS returns a view of fsys limited to files matching any of the
// included patterns (all files if included is empty) and not matching any
// of the excluded patterns. Directories whose entire subtree is excluded
// by a pattern of the form "dir/**" are pruned from directory listings.
func NewFilterFS(fsys fs.FS, included, excluded []string) (*FilterFS, error) {
	f := &FilterFS{inner: fsys}

	for _, p := range included {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, err
		}
		f.included = append(f.included, g)
	}

	for _, p := range excluded {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, err
		}
		f.excluded = append(f.excluded, g)

		if rest, ok := strings.CutSuffix(p, "/**"); ok && rest != "" {
			g, err := glob.Compile(rest, '/')
			if err != nil {
				return nil, err
			}
			f.pruned = append(f.pruned, g)
		}
	}

	return f, nil
}

func (f *FilterFS) Open(name string) (fs.File, error) {
	file, err := f.inner.Open(name)
	if err != nil {
		return nil, err
	}
	if name == "." {
		return file, nil
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}

	hidden := f.dirHidden(name)
	if !info.IsDir() {
		hidden = f.fileHidden(name)
	}
	if hidden {
		file.Close()
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}

	return file, nil
}

func (f *FilterFS) ReadDir(name string) ([]fs.DirEntry, error) {
	entries, err := fs.ReadDir(f.inner, name)
	if err != nil {
		return nil, err
	}

	visible := make([]fs.DirEntry, 0, len(entries))
	for _, e := range entries {
		p := e.Name()
		if name != "." {
			p = name + "/" + p
		}
		if e.IsDir() {
			if !f.dirHidden(p) {
				visible = append(visible, e)
			}
		} else if !f.fileHidden(p) {
			visible = append(visible, e)
		}
	}

	return visible, nil
}

func (f *FilterFS) fileHidden(p string) bool {
	if matchAny(f.excluded, p) {
		return true
	}
	return len(f.included) > 0 && !matchAny(f.included, p)
}

func (f *FilterFS) dirHidden(p string) bool {
	return matchAny(f.pruned, p) || matchAny(f.excluded, p)
}

func matchAny(globs []glob.Glob, p string) bool {
	for _, g := range globs {
		if g.Match(p) {
			return true
		}
	}
	return false
}

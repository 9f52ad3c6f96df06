package plugin

import (
	"context"
)

// Plugin is the base interface implemented by every build plugin.
type Plugin interface {
	// Name identifies the plugin in logs and diagnostics.
	Name() string
}

// Loader builds one source file into one output file. A loader claims
// input files by extension and declares the extension of its output.
type Loader interface {
	Plugin

	// Extensions maps input file extensions to the extension of the file
	// the loader produces, e.g. {".svelte": ".js"}. Extensions include the
	// leading dot and are matched case-insensitively.
	Extensions() map[string]string

	// Load builds the file in req. Returning a nil result means the
	// loader declines the file and the pipeline falls back to copying it
	// through unchanged.
	Load(ctx context.Context, req *LoadRequest) (*LoadResult, error)
}

// LoadRequest describes one source file to build.
type LoadRequest struct {
	// Path is the absolute path of the source file on disk.
	Path string

	// Ext is the claimed extension, lower-cased.
	Ext string

	// Contents is the raw file content.
	Contents []byte
}

// LoadResult is the produced file.
type LoadResult struct {
	Contents []byte
}

// Transformer rewrites built file contents before they are written to the
// output tree. Transformers run after loaders and before import rewriting.
type Transformer interface {
	Plugin

	// Transform rewrites the file in req. Returning a nil result leaves
	// the file unchanged.
	Transform(ctx context.Context, req *TransformRequest) (*TransformResult, error)
}

// TransformRequest describes one built file.
type TransformRequest struct {
	// URL is the output URL the file will be served under.
	URL string

	// Ext is the file's extension after loading, lower-cased.
	Ext string

	// Contents is the built file content.
	Contents []byte
}

// TransformResult is the rewritten file.
type TransformResult struct {
	Contents []byte
}

// Optimizer runs once after the output tree is complete, e.g. to minify.
type Optimizer interface {
	Plugin

	// Optimize post-processes the finished output directory in place.
	Optimize(ctx context.Context, dir string) error
}

// ChangeListener is notified when a watched source file changes. The
// one-shot build pipeline never calls it; file watchers built on top of
// this module do.
type ChangeListener interface {
	Plugin

	OnChange(path string)
}

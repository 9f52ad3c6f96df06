package install

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// FlattenRequest describes one flattening run over all package entrypoints
// of a build.
type FlattenRequest struct {
	// Entrypoints maps the output name of a web module (without extension,
	// e.g. "lodash/debounce") to the absolute path of its source entry.
	Entrypoints map[string]string

	// DestDir is the absolute directory output paths are computed against.
	DestDir string

	// SearchDir is the absolute directory package resolution starts from,
	// typically the directory holding node_modules.
	SearchDir string

	// External packages are left as bare imports in the output.
	External []string

	// Env is substituted for process.env.NODE_ENV.
	Env string

	// MainFields overrides the manifest fields consulted for entrypoints.
	MainFields []string

	SourceMap   bool
	TreeShaking bool
}

// FlattenedFile is one output file of a flattening run. Contents are held
// in memory; the installer decides when the output tree is written.
type FlattenedFile struct {
	Path     string
	Contents []byte
}

// Flattener converts package entrypoints into browser-ready ES modules.
// Implementations must not write to disk.
type Flattener interface {
	Flatten(ctx context.Context, req *FlattenRequest) ([]FlattenedFile, error)
}

// ESBuildFlattener flattens packages with the embedded esbuild bundler.
type ESBuildFlattener struct{}

func (ESBuildFlattener) Flatten(_ context.Context, req *FlattenRequest) ([]FlattenedFile, error) {
	entryPoints := make([]api.EntryPoint, 0, len(req.Entrypoints))
	for _, name := range slices.Sorted(maps.Keys(req.Entrypoints)) {
		entryPoints = append(entryPoints, api.EntryPoint{
			InputPath:  req.Entrypoints[name],
			OutputPath: name,
		})
	}

	sourcemap := api.SourceMapNone
	if req.SourceMap {
		sourcemap = api.SourceMapLinked
	}

	treeShaking := api.TreeShakingDefault
	if !req.TreeShaking {
		treeShaking = api.TreeShakingFalse
	}

	result := api.Build(api.BuildOptions{
		EntryPointsAdvanced: entryPoints,
		Outdir:              req.DestDir,
		AbsWorkingDir:       req.SearchDir,
		Bundle:              true,
		Write:               false,
		Format:              api.FormatESModule,
		Platform:            api.PlatformBrowser,
		Target:              api.ESNext,
		Splitting:           true,
		ChunkNames:          "common/[name]-[hash]",
		MainFields:          req.MainFields,
		External:            req.External,
		Define: map[string]string{
			"process.env.NODE_ENV": strconv.Quote(req.Env),
		},
		TreeShaking: treeShaking,
		Sourcemap:   sourcemap,
		LogLevel:    api.LogLevelSilent,
	})

	if len(result.Errors) > 0 {
		msgs := make([]string, len(result.Errors))
		for i, msg := range result.Errors {
			if msg.Location != nil {
				msgs[i] = fmt.Sprintf("%s:%d: %s", msg.Location.File, msg.Location.Line, msg.Text)
			} else {
				msgs[i] = msg.Text
			}
		}
		return nil, errors.New(strings.Join(msgs, "; "))
	}

	files := make([]FlattenedFile, len(result.OutputFiles))
	for i, f := range result.OutputFiles {
		files[i] = FlattenedFile{Path: f.Path, Contents: f.Contents}
	}
	return files, nil
}

// Package plugin defines the build plugin contract.
//
// A plugin extends the build pipeline with per-file capabilities. Each
// capability is a separate interface so a plugin implements only what it
// needs:
//   - Loader: build one source file into one output file (e.g. .svelte -> .js)
//   - Transformer: rewrite built file contents before they are written
//   - Optimizer: post-process the finished output tree
//   - ChangeListener: react to watched-file changes (driven by dev tooling,
//     not by the one-shot build pipeline)
//
// Plugins are Go values registered under a name. A project configuration
// names the plugins it wants plus their options, and the CLI instantiates
// them through registered factories:
//
//	import "github.com/pikapkg/snowpack/pkg/plugin"
//
//	type svelteOptions struct {
//	    Compiler string `json:"compiler"`
//	}
//
//	func init() {
//	    plugin.RegisterFactory("svelte", func(raw map[string]any) (plugin.Plugin, error) {
//	        var opts svelteOptions
//	        if err := plugin.DecodeOptions(raw, &opts); err != nil {
//	            return nil, err
//	        }
//	        return &sveltePlugin{opts: opts}, nil
//	    })
//	}
//
// The corresponding configuration:
//
//	plugins:
//	  svelte:
//	    compiler: /usr/local/bin/svelte
//
// Option maps are decoded with DecodeOptions, which rejects unknown keys so
// configuration typos surface as errors instead of being silently dropped.
//
// Thread Safety: the Registry is safe to read from multiple goroutines once
// populated. Individual plugins must handle their own concurrency; the build
// pipeline may call Load and Transform from several workers at once.
package plugin

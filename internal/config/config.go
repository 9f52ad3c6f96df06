package config

import (
	"bytes"
	"cmp"
	"encoding/json"
	"fmt"
	"iter"
	"maps"
	"os"
	"reflect"
	"slices"
	"strings"

	"github.com/gobwas/glob"
	"github.com/goccy/go-yaml"

	"github.com/pikapkg/snowpack/internal/alias"
	"github.com/pikapkg/snowpack/internal/jsonpatch"
	"github.com/pikapkg/snowpack/internal/util"
)

// Internal configuration data structures for the snowpack build pipeline.

// Defaults applied while unmarshaling. Relative paths are interpreted
// against the project root, i.e. the directory holding the config file.
const (
	DefaultOut      = "build"
	DefaultCacheDir = ".snowpack"
	DefaultDest     = "web_modules"
)

// Root is the top-level configuration structure for a project. Mount maps
// source directories to the URL prefix their files are served under and is
// the only part a project cannot leave out.
type Root struct {
	Mount        map[string]string        `json:"mount"`
	Alias        Aliases                  `json:"alias,omitempty"`
	Exclude      StringSet                `json:"exclude,omitempty"`
	UseGitignore *bool                    `json:"use_gitignore,omitempty"`
	Out          string                   `json:"out,omitempty"`
	CacheDir     string                   `json:"cache_dir,omitempty"`
	Install      *Install                 `json:"install,omitempty"`
	Plugins      map[string]PluginOptions `json:"plugins,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for the Root
// struct. It normalizes the decoded tree so that callers never see a nil
// Install section or unset defaults.
func (r *Root) UnmarshalYAML(bs []byte) error {
	type rawRoot Root // avoid recursive calls to UnmarshalYAML by type aliasing
	var raw rawRoot

	if err := yaml.Unmarshal(bs, &raw); err != nil {
		return fmt.Errorf("failed to decode Root: %w", err)
	}

	*r = Root(raw) // Assign the unmarshaled data back to the original struct
	return r.unmarshal(r)
}

func (r *Root) UnmarshalJSON(bs []byte) error {
	type rawRoot Root // avoid recursive calls to UnmarshalJSON by type aliasing
	var raw rawRoot

	if err := json.Unmarshal(bs, &raw); err != nil {
		return fmt.Errorf("failed to decode Root: %w", err)
	}

	*r = Root(raw) // Assign the unmarshaled data back to the original struct
	return r.unmarshal(r)
}

// Unmarshal normalizes a Root constructed in code the same way parsing
// a config file would.
func (r *Root) Unmarshal() error {
	return r.unmarshal(r)
}

func (*Root) unmarshal(raw *Root) error {
	raw.Out = cmp.Or(raw.Out, DefaultOut)
	raw.CacheDir = cmp.Or(raw.CacheDir, DefaultCacheDir)
	raw.Install = cmp.Or(raw.Install, &Install{})
	raw.Install.Dest = cmp.Or(raw.Install.Dest, DefaultDest)
	return raw.validate()
}

func (r *Root) validate() error {
	if len(r.Mount) == 0 {
		return fmt.Errorf("config needs at least one mount directory")
	}

	urls := make(map[string]string, len(r.Mount))
	for _, dir := range slices.Sorted(maps.Keys(r.Mount)) { // Sort keys to ensure deterministic errors.
		url := r.Mount[dir]
		if !strings.HasPrefix(url, "/") {
			return fmt.Errorf("mount URL for directory %q must start with '/', got %q", dir, url)
		}
		if prev, ok := urls[url]; ok {
			return fmt.Errorf("mount directories %q and %q share the URL %q", prev, dir, url)
		}
		urls[url] = dir
	}

	for _, pattern := range r.Exclude {
		if _, err := glob.Compile(pattern, '/'); err != nil {
			return fmt.Errorf("failed to compile exclude pattern %q: %w", pattern, err)
		}
	}

	return r.Install.validate()
}

// GitignoreEnabled reports whether mount discovery honors the project's
// .gitignore. On unless switched off.
func (r *Root) GitignoreEnabled() bool {
	return r.UseGitignore == nil || *r.UseGitignore
}

func (r *Root) Equal(other *Root) bool {
	return util.FastEqual(r, other, func(r, other *Root) bool {
		return maps.Equal(r.Mount, other.Mount) &&
			r.Alias.Equal(other.Alias) &&
			r.Exclude.Equal(other.Exclude) &&
			util.PtrEqual(r.UseGitignore, other.UseGitignore) &&
			r.Out == other.Out &&
			r.CacheDir == other.CacheDir &&
			r.Install.Equal(other.Install) &&
			reflect.DeepEqual(r.Plugins, other.Plugins)
	})
}

// SortedMounts yields mount (directory, url) pairs ordered by directory
// name so builds walk mounts deterministically.
func (r *Root) SortedMounts() iter.Seq2[string, string] {
	dirs := slices.Sorted(maps.Keys(r.Mount))

	return func(yield func(string, string) bool) {
		for _, dir := range dirs {
			if !yield(dir, r.Mount[dir]) {
				return
			}
		}
	}
}

// Aliases is the ordered alias table. Config files write it as a mapping
// from specifier to replacement; declaration order decides which entry wins
// when several match, so decoding keeps the file order instead of going
// through an unordered Go map.
type Aliases []alias.Entry

func (a *Aliases) UnmarshalYAML(bs []byte) error {
	var items yaml.MapSlice
	if err := yaml.Unmarshal(bs, &items); err != nil {
		return fmt.Errorf("failed to decode alias table: %w", err)
	}

	entries := make([]alias.Entry, 0, len(items))
	for _, item := range items {
		from, ok := item.Key.(string)
		if !ok {
			return fmt.Errorf("alias name must be a string, got %v", item.Key)
		}
		to, ok := item.Value.(string)
		if !ok {
			return fmt.Errorf("alias target for %q must be a string, got %v", from, item.Value)
		}
		entries = append(entries, alias.NewEntry(from, to))
	}

	*a = entries
	return nil
}

func (a *Aliases) UnmarshalJSON(bs []byte) error {
	dec := json.NewDecoder(bytes.NewReader(bs))
	if tok, err := dec.Token(); err != nil {
		return err
	} else if tok != json.Delim('{') {
		return fmt.Errorf("alias table must be an object, got %v", tok)
	}

	var entries []alias.Entry
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		from := tok.(string) // object keys are always strings
		var to string
		if err := dec.Decode(&to); err != nil {
			return fmt.Errorf("alias target for %q must be a string: %w", from, err)
		}
		entries = append(entries, alias.NewEntry(from, to))
	}

	*a = entries
	return nil
}

// Table converts the entries into the resolver's form.
func (a Aliases) Table() alias.Table {
	return alias.Table(a)
}

func (a Aliases) Equal(b Aliases) bool {
	return slices.Equal(a, b)
}

// Install configures how collected packages are flattened into the
// dependency directory.
type Install struct {
	Dest                string           `json:"dest,omitempty"`
	Packages            StringSet        `json:"packages,omitempty"`
	External            StringSet        `json:"external,omitempty"`
	Env                 string           `json:"env,omitempty"`
	SourceMap           *bool            `json:"source_map,omitempty"`
	TreeShaking         *bool            `json:"tree_shaking,omitempty"`
	PackageLookupFields StringSet        `json:"package_lookup_fields,omitempty"`
	ManifestPatches     map[string]Patch `json:"manifest_patches,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

func (i *Install) validate() error {
	_, err := i.ManifestPatchSet()
	return err
}

// ManifestPatchSet decodes the configured patches into applyable form.
func (i *Install) ManifestPatchSet() (map[string]jsonpatch.Patch, error) {
	if len(i.ManifestPatches) == 0 {
		return nil, nil
	}

	patches := make(map[string]jsonpatch.Patch, len(i.ManifestPatches))
	for _, pkg := range slices.Sorted(maps.Keys(i.ManifestPatches)) { // Sort keys to ensure deterministic errors.
		p, err := jsonpatch.DecodePatch(i.ManifestPatches[pkg])
		if err != nil {
			return nil, fmt.Errorf("invalid manifest patch for %q: %w", pkg, err)
		}
		patches[pkg] = p
	}
	return patches, nil
}

// NodeEnv is the value flattened dependencies see as process.env.NODE_ENV.
func (i *Install) NodeEnv() string {
	return cmp.Or(i.Env, "production")
}

func (i *Install) SourceMapEnabled() bool {
	return i.SourceMap != nil && *i.SourceMap
}

func (i *Install) TreeShakingEnabled() bool {
	return i.TreeShaking == nil || *i.TreeShaking
}

func (i *Install) Equal(other *Install) bool {
	return util.FastEqual(i, other, func(i, other *Install) bool {
		return i.Dest == other.Dest &&
			i.Packages.Equal(other.Packages) &&
			i.External.Equal(other.External) &&
			i.Env == other.Env &&
			util.PtrEqual(i.SourceMap, other.SourceMap) &&
			util.PtrEqual(i.TreeShaking, other.TreeShaking) &&
			i.PackageLookupFields.Equal(other.PackageLookupFields) &&
			maps.EqualFunc(i.ManifestPatches, other.ManifestPatches, func(a, b Patch) bool { return bytes.Equal(a, b) })
	})
}

// Patch is a raw RFC 6902 patch document. YAML input is normalized to JSON
// bytes on decode so the patch machinery only ever sees JSON.
type Patch []byte

func (p *Patch) UnmarshalYAML(bs []byte) error {
	js, err := yaml.YAMLToJSON(bs)
	if err != nil {
		return fmt.Errorf("failed to decode manifest patch: %w", err)
	}
	*p = Patch(js)
	return nil
}

func (p *Patch) UnmarshalJSON(bs []byte) error {
	*p = Patch(slices.Clone(bs))
	return nil
}

// PluginOptions holds one plugin's raw option map. Keys are plugin-defined
// and are validated by the plugin itself when the options are decoded.
type PluginOptions map[string]any

type StringSet []string

func (a StringSet) Equal(b StringSet) bool {
	return slices.Equal(a, b)
}

func (a StringSet) Contains(value string) bool {
	return slices.Contains(a, value)
}

func ParseFile(filename string) (root *Root, err error) {
	bs, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	return Parse(bs)
}

func Parse(bs []byte) (*Root, error) {
	if err := Validate(bs); err != nil {
		return nil, err
	}

	var root Root
	if err := yaml.Unmarshal(bs, &root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &root, nil
}

func Validate(data []byte) error {
	var config any
	if err := yaml.Unmarshal(data, &config); err != nil {
		return err
	}

	return rootSchema.Validate(config)
}

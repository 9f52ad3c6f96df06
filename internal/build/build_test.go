package build_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/pikapkg/snowpack/internal/build"
	"github.com/pikapkg/snowpack/internal/config"
	"github.com/pikapkg/snowpack/internal/install"
	"github.com/pikapkg/snowpack/internal/test/tempfs"
	"github.com/pikapkg/snowpack/pkg/plugin"
)

// fakeFlattener stands in for the bundler so builds stay hermetic.
type fakeFlattener struct{}

func (fakeFlattener) Flatten(_ context.Context, req *install.FlattenRequest) ([]install.FlattenedFile, error) {
	var files []install.FlattenedFile
	for name := range req.Entrypoints {
		files = append(files, install.FlattenedFile{
			Path:     filepath.Join(req.DestDir, filepath.FromSlash(name)+".js"),
			Contents: []byte("export default {};\n"),
		})
	}
	return files, nil
}

func parseConfig(t *testing.T, yaml string) *config.Root {
	t.Helper()
	cfg, err := config.Parse([]byte(yaml))
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

const indexJS = `import { h } from "preact";
import "./styles.css";
import { App } from "./App";
h(App, null);
`

const appJSX = `import { h } from "preact";
export const App = () => h("div", null, "hi");
`

func TestBuildEndToEnd(t *testing.T) {
	files := map[string]string{
		"src/index.js":      indexJS,
		"src/App.jsx":       appJSX,
		"src/styles.css":    "body { color: red; }\n",
		"public/index.html": `<script type="module" src="/_dist_/index.js"></script>`,

		"node_modules/preact/package.json":          `{"name": "preact", "version": "10.4.6", "module": "dist/preact.module.js"}`,
		"node_modules/preact/dist/preact.module.js": "export const h = () => {};\n",
	}

	cfg := parseConfig(t, `
mount:
  src: /_dist_
  public: /
`)

	tempfs.WithTempFS(t, files, func(t *testing.T, root string) {
		res, err := build.New(cfg).
			WithRootDir(root).
			WithFlattener(fakeFlattener{}).
			WithQuiet(true).
			Run(context.Background())
		if err != nil {
			t.Fatal(err)
		}

		outDir := filepath.Join(root, "build")

		index, err := os.ReadFile(filepath.Join(outDir, "_dist_", "index.js"))
		if err != nil {
			t.Fatal(err)
		}
		for _, want := range []string{
			`from "../web_modules/preact.js";`,
			`import "./styles.css.proxy.js";`,
			`from "./App.js";`,
		} {
			if !strings.Contains(string(index), want) {
				t.Errorf("index.js misses %q:\n%s", want, index)
			}
		}

		app, err := os.ReadFile(filepath.Join(outDir, "_dist_", "App.js"))
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(app), `from "../web_modules/preact.js"`) {
			t.Errorf("App.js import not rewritten:\n%s", app)
		}

		for _, p := range []string{
			filepath.Join(outDir, "_dist_", "styles.css"),
			filepath.Join(outDir, "_dist_", "styles.css.proxy.js"),
			filepath.Join(outDir, "index.html"),
			filepath.Join(outDir, "web_modules", "preact.js"),
			filepath.Join(outDir, "web_modules", "import-map.json"),
		} {
			if _, err := os.Stat(p); err != nil {
				t.Errorf("missing output file: %v", err)
			}
		}

		if res.Files != 4 {
			t.Errorf("expected 4 built files, got %d", res.Files)
		}
		if res.Proxies != 1 {
			t.Errorf("expected 1 proxy module, got %d", res.Proxies)
		}
		if url, ok := res.ImportMap.Resolve("preact"); !ok || url != "./preact.js" {
			t.Errorf("unexpected import map entry for preact: %q (ok=%v)", url, ok)
		}

		exp := []string{"/_dist_/App.js", "/_dist_/index.js"}
		if diff := cmp.Diff(exp, res.Registry.Importers("preact")); diff != "" {
			t.Errorf("unexpected preact importers (-want, +got):\n%s", diff)
		}
	})
}

func TestBuildAbortsWhenInstallFails(t *testing.T) {
	files := map[string]string{
		"src/index.js": `import missing from "not-a-real-package";` + "\n",
	}
	cfg := parseConfig(t, `
mount:
  src: /
`)

	tempfs.WithTempFS(t, files, func(t *testing.T, root string) {
		_, err := build.New(cfg).
			WithRootDir(root).
			WithFlattener(fakeFlattener{}).
			WithQuiet(true).
			Run(context.Background())

		var installErr *install.InstallError
		if !errors.As(err, &installErr) {
			t.Fatalf("expected an InstallError, got %v", err)
		}
		if installErr.Package != "not-a-real-package" {
			t.Fatalf("expected the error to name the package, got %q", installErr.Package)
		}

		// The install barrier failed, so no output may exist.
		if _, err := os.Stat(filepath.Join(root, "build")); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("expected no output directory, got %v", err)
		}
	})
}

func TestBuildInstallsConfiguredPackages(t *testing.T) {
	files := map[string]string{
		"public/index.html": "<h1>hello</h1>\n",

		"node_modules/lodash/package.json": `{"name": "lodash", "version": "4.17.21", "main": "lodash.js"}`,
		"node_modules/lodash/lodash.js":    "module.exports = {};\n",
	}
	cfg := parseConfig(t, `
mount:
  public: /
install:
  packages:
    - lodash
`)

	tempfs.WithTempFS(t, files, func(t *testing.T, root string) {
		res, err := build.New(cfg).
			WithRootDir(root).
			WithFlattener(fakeFlattener{}).
			WithQuiet(true).
			Run(context.Background())
		if err != nil {
			t.Fatal(err)
		}

		if url, ok := res.ImportMap.Resolve("lodash"); !ok || url != "./lodash.js" {
			t.Fatalf("expected lodash installed via configuration, got %q (ok=%v)", url, ok)
		}
	})
}

func TestBuildHonorsGitignore(t *testing.T) {
	files := map[string]string{
		"src/.gitignore":   "generated.js\n",
		"src/index.js":     "console.log(1);\n",
		"src/generated.js": "console.log(2);\n",
	}
	cfg := parseConfig(t, `
mount:
  src: /
`)

	tempfs.WithTempFS(t, files, func(t *testing.T, root string) {
		if _, err := build.New(cfg).
			WithRootDir(root).
			WithFlattener(fakeFlattener{}).
			WithQuiet(true).
			Run(context.Background()); err != nil {
			t.Fatal(err)
		}

		if _, err := os.Stat(filepath.Join(root, "build", "index.js")); err != nil {
			t.Fatal(err)
		}
		if _, err := os.Stat(filepath.Join(root, "build", "generated.js")); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("expected generated.js to be ignored, got %v", err)
		}
	})
}

type svelteLoader struct{}

func (svelteLoader) Name() string { return "svelte" }

func (svelteLoader) Extensions() map[string]string {
	return map[string]string{".svelte": ".js"}
}

func (svelteLoader) Load(context.Context, *plugin.LoadRequest) (*plugin.LoadResult, error) {
	return &plugin.LoadResult{Contents: []byte(`import { tick } from "svelte-runtime";` + "\nexport default {};\n")}, nil
}

type bannerTransformer struct{}

func (bannerTransformer) Name() string { return "banner" }

func (bannerTransformer) Transform(_ context.Context, req *plugin.TransformRequest) (*plugin.TransformResult, error) {
	if req.Ext != ".js" {
		return nil, nil
	}
	return &plugin.TransformResult{Contents: append([]byte("// banner\n"), req.Contents...)}, nil
}

func TestBuildWithPlugins(t *testing.T) {
	files := map[string]string{
		"src/Widget.svelte": "<h1>widget</h1>\n",

		"node_modules/svelte-runtime/package.json": `{"name": "svelte-runtime", "version": "1.0.0", "main": "index.js"}`,
		"node_modules/svelte-runtime/index.js":     "export const tick = () => {};\n",
	}
	cfg := parseConfig(t, `
mount:
  src: /
`)

	reg := plugin.NewRegistry()
	if err := reg.Register(svelteLoader{}); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(bannerTransformer{}); err != nil {
		t.Fatal(err)
	}

	tempfs.WithTempFS(t, files, func(t *testing.T, root string) {
		res, err := build.New(cfg).
			WithRootDir(root).
			WithRegistry(reg).
			WithFlattener(fakeFlattener{}).
			WithQuiet(true).
			Run(context.Background())
		if err != nil {
			t.Fatal(err)
		}

		widget, err := os.ReadFile(filepath.Join(root, "build", "Widget.js"))
		if err != nil {
			t.Fatal(err)
		}
		if !strings.HasPrefix(string(widget), "// banner\n") {
			t.Errorf("transformer did not run:\n%s", widget)
		}
		if !strings.Contains(string(widget), `from "./web_modules/svelte-runtime.js"`) {
			t.Errorf("loader-injected import not installed and rewritten:\n%s", widget)
		}

		if url, ok := res.ImportMap.Resolve("svelte-runtime"); !ok || url != "./svelte-runtime.js" {
			t.Errorf("expected svelte-runtime installed, got %q (ok=%v)", url, ok)
		}
	})
}

func TestBuildUnknownPluginFails(t *testing.T) {
	files := map[string]string{
		"src/index.js": "console.log(1);\n",
	}
	cfg := parseConfig(t, `
mount:
  src: /
plugins:
  no-such-plugin: {}
`)

	tempfs.WithTempFS(t, files, func(t *testing.T, root string) {
		_, err := build.New(cfg).
			WithRootDir(root).
			WithFlattener(fakeFlattener{}).
			WithQuiet(true).
			Run(context.Background())
		if err == nil || !strings.Contains(err.Error(), `unknown plugin "no-such-plugin"`) {
			t.Fatalf("expected an unknown plugin error, got %v", err)
		}
	})
}

package plugin_test

import (
	"context"
	"strings"
	"testing"

	"github.com/pikapkg/snowpack/pkg/plugin"
)

type fakeLoader struct {
	name string
	exts map[string]string
}

func (f *fakeLoader) Name() string                  { return f.name }
func (f *fakeLoader) Extensions() map[string]string { return f.exts }

func (f *fakeLoader) Load(_ context.Context, req *plugin.LoadRequest) (*plugin.LoadResult, error) {
	return &plugin.LoadResult{Contents: append([]byte("// built\n"), req.Contents...)}, nil
}

type fakeTransformer struct {
	name string
}

func (f *fakeTransformer) Name() string { return f.name }

func (f *fakeTransformer) Transform(_ context.Context, req *plugin.TransformRequest) (*plugin.TransformResult, error) {
	return &plugin.TransformResult{Contents: req.Contents}, nil
}

func TestRegistryLoaderFor(t *testing.T) {
	r := plugin.NewRegistry()

	svelte := &fakeLoader{name: "svelte", exts: map[string]string{".svelte": ".js"}}
	vue := &fakeLoader{name: "vue", exts: map[string]string{".vue": ".js"}}
	if err := r.Register(svelte); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(vue); err != nil {
		t.Fatal(err)
	}

	loader, out, ok := r.LoaderFor(".svelte")
	if !ok {
		t.Fatal("expected loader for .svelte")
	}
	if loader.Name() != "svelte" || out != ".js" {
		t.Fatalf("unexpected loader %q producing %q", loader.Name(), out)
	}

	// Extension matching ignores case.
	if _, _, ok := r.LoaderFor(".SVELTE"); !ok {
		t.Fatal("expected case-insensitive extension match")
	}

	if _, _, ok := r.LoaderFor(".css"); ok {
		t.Fatal("expected no loader for .css")
	}
}

func TestRegistryDuplicateName(t *testing.T) {
	r := plugin.NewRegistry()

	if err := r.Register(&fakeLoader{name: "svelte"}); err != nil {
		t.Fatal(err)
	}
	err := r.Register(&fakeTransformer{name: "svelte"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), `"svelte" registered twice`) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRegistryCapabilitySplit(t *testing.T) {
	r := plugin.NewRegistry()

	if err := r.Register(&fakeLoader{name: "svelte", exts: map[string]string{".svelte": ".js"}}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(&fakeTransformer{name: "banner"}); err != nil {
		t.Fatal(err)
	}

	if n := len(r.Transformers()); n != 1 {
		t.Fatalf("expected one transformer, got %d", n)
	}
	if n := len(r.Optimizers()); n != 0 {
		t.Fatalf("expected no optimizers, got %d", n)
	}
	if n := len(r.Plugins()); n != 2 {
		t.Fatalf("expected two plugins, got %d", n)
	}
}

func TestDecodeOptions(t *testing.T) {
	type options struct {
		Compiler string `json:"compiler"`
		Minify   bool   `json:"minify"`
	}

	var opts options
	err := plugin.DecodeOptions(map[string]any{"compiler": "/usr/bin/svelte", "minify": true}, &opts)
	if err != nil {
		t.Fatal(err)
	}
	if opts.Compiler != "/usr/bin/svelte" || !opts.Minify {
		t.Fatalf("unexpected options: %+v", opts)
	}
}

func TestDecodeOptionsUnknownKey(t *testing.T) {
	type options struct {
		Compiler string `json:"compiler"`
	}

	var opts options
	err := plugin.DecodeOptions(map[string]any{"compilers": "/usr/bin/svelte"}, &opts)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "invalid keys") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFactoryRegistration(t *testing.T) {
	plugin.RegisterFactory("test-factory", func(options map[string]any) (plugin.Plugin, error) {
		return &fakeLoader{name: "test-factory"}, nil
	})

	f, ok := plugin.LookupFactory("test-factory")
	if !ok {
		t.Fatal("expected registered factory")
	}
	p, err := f(nil)
	if err != nil {
		t.Fatal(err)
	}
	if p.Name() != "test-factory" {
		t.Fatalf("unexpected plugin %q", p.Name())
	}

	if _, ok := plugin.LookupFactory("no-such-plugin"); ok {
		t.Fatal("expected lookup miss")
	}

	names := plugin.FactoryNames()
	found := false
	for _, name := range names {
		if name == "test-factory" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected test-factory in %v", names)
	}
}

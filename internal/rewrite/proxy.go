package rewrite

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	snowfs "github.com/pikapkg/snowpack/internal/fs"
	"github.com/pikapkg/snowpack/internal/logging"
	"github.com/pikapkg/snowpack/internal/metrics"
)

// ProxySuffix is appended to an asset's path to name the wrapper module
// that exposes it with import semantics.
const ProxySuffix = ".proxy.js"

// ProxySet collects the absolute paths of proxy modules requested during
// rewriting. Rewrite workers share one set, so it is safe for concurrent
// use.
type ProxySet struct {
	mu    sync.Mutex
	paths map[string]struct{}
}

func NewProxySet() *ProxySet {
	return &ProxySet{paths: map[string]struct{}{}}
}

func (s *ProxySet) Add(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paths[path] = struct{}{}
}

func (s *ProxySet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.paths)
}

// Paths returns the recorded proxy paths, sorted.
func (s *ProxySet) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.paths))
}

// ProxyWriter synthesizes the wrapper modules recorded in a ProxySet. It
// must run only after every rewrite finished, since rewriting is what
// fills the set.
type ProxyWriter struct {
	outDir string
	log    *logging.Logger
}

// NewProxyWriter returns a writer for proxies under the absolute output
// directory outDir.
func NewProxyWriter(outDir string) *ProxyWriter {
	return &ProxyWriter{outDir: outDir, log: logging.NewNopLogger()}
}

func (w *ProxyWriter) WithLogger(log *logging.Logger) *ProxyWriter {
	w.log = log
	return w
}

// Write writes every proxy module in the set. Distinct proxies are
// independent files, so they are written concurrently.
func (w *ProxyWriter) Write(ctx context.Context, proxies *ProxySet) error {
	g, _ := errgroup.WithContext(ctx)
	for _, proxyPath := range proxies.Paths() {
		g.Go(func() error {
			return w.write(proxyPath)
		})
	}
	return g.Wait()
}

func (w *ProxyWriter) write(proxyPath string) error {
	original := strings.TrimSuffix(proxyPath, ProxySuffix)
	contents, err := os.ReadFile(original)
	if err != nil {
		return fmt.Errorf("failed to read proxied asset: %w", err)
	}

	rel, err := filepath.Rel(w.outDir, original)
	if err != nil {
		return err
	}
	url := "/" + filepath.ToSlash(rel)

	w.log.Debugf("writing proxy module for %s", url)
	metrics.FilesProxied.Inc()
	return snowfs.WriteFile(proxyPath, proxyModule(url, contents))
}

// proxyModule wraps an asset as an ES module. Stylesheets inject
// themselves into the document when imported, JSON re-exports the parsed
// value, and anything else exports the asset's URL for the importer to
// reference.
func proxyModule(url string, contents []byte) []byte {
	switch strings.ToLower(path.Ext(url)) {
	case ".css":
		code, _ := json.Marshal(string(contents))
		return fmt.Appendf(nil, cssProxyTemplate, code)
	case ".json":
		return fmt.Appendf(nil, "let json = %s;\nexport default json;\n", strings.TrimSpace(string(contents)))
	default:
		return fmt.Appendf(nil, "export default %q;\n", url)
	}
}

const cssProxyTemplate = `const code = %s;

const styleEl = document.createElement("style");
styleEl.type = "text/css";
styleEl.appendChild(document.createTextNode(code));
document.head.appendChild(styleEl);

export default code;
`

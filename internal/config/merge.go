package config

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"

	"gopkg.in/yaml.v3"
)

// Merge combines the given config files (or directories of config files)
// into a single YAML document. Later files override earlier ones unless
// conflictError is set, in which case differing scalar values for the same
// path are an error. The merge works on yaml.Node trees rather than Go maps
// because mapping order is significant for the alias table and must survive
// the round trip.
func Merge(configFiles []string, conflictError bool) ([]byte, error) {

	var paths []string
	for _, f := range configFiles {
		if err := filepath.Walk(f, func(path string, fi fs.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if fi.IsDir() {
				return nil
			}
			paths = append(paths, path)
			return nil
		}); err != nil {
			return nil, err
		}
	}

	docs := make([]*yaml.Node, 0, len(paths))
	for _, f := range paths {
		bs, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %v: %v", f, err)
		}
		var doc yaml.Node
		if err := yaml.Unmarshal(bs, &doc); err != nil {
			return nil, fmt.Errorf("failed to unmarshal configuration file %v: %v", f, err)
		}
		if len(doc.Content) == 0 {
			continue // empty file
		}
		root := doc.Content[0]
		if root.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("configuration file %v is not a mapping", f)
		}
		docs = append(docs, root)
	}

	merged, err := merge(docs, "", conflictError)
	if err != nil {
		return nil, err
	}

	bs, err := yaml.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal merged configuration: %v", err)
	}

	return bs, nil
}

// merge folds mapping nodes left to right. Keys keep the document order of
// their first appearance.
func merge(docs []*yaml.Node, path string, conflictError bool) (*yaml.Node, error) {
	result := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, doc := range docs {
		for i := 0; i+1 < len(doc.Content); i += 2 {
			key, value := doc.Content[i], doc.Content[i+1]
			existing := mappingValue(result, key.Value)
			if existing == nil {
				result.Content = append(result.Content, key, value)
				continue
			}

			if existing.Kind == yaml.MappingNode && value.Kind == yaml.MappingNode {
				m, err := merge([]*yaml.Node{existing, value}, path+"/"+key.Value, conflictError)
				if err != nil {
					return nil, err
				}
				*existing = *m
				continue
			}

			if conflictError && !nodesEqual(existing, value) {
				return nil, fmt.Errorf("conflict for config path %s", path+"/"+key.Value)
			}
			*existing = *value
		}
	}
	return result, nil
}

func mappingValue(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

func nodesEqual(a, b *yaml.Node) bool {
	var av, bv any
	if err := a.Decode(&av); err != nil {
		return false
	}
	if err := b.Decode(&bv); err != nil {
		return false
	}
	return reflect.DeepEqual(av, bv)
}

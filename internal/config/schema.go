package config

import (
	"bytes"
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v6"
	schemareflector "github.com/swaggest/jsonschema-go"

	ext_config "github.com/pikapkg/snowpack/config"
)

var rootSchema *jsonschema.Schema

func init() {
	js, err := jsonschema.UnmarshalJSON(bytes.NewReader(ext_config.Schema()))
	if err != nil {
		panic(err)
	}
	compiler := jsonschema.NewCompiler()
	compiler.DefaultDraft(jsonschema.Draft2020)
	if err := compiler.AddResource("schema.json", js); err != nil {
		panic(err)
	}

	rootSchema, err = compiler.Compile("schema.json")
	if err != nil {
		panic(err)
	}
}

func ReflectSchema() ([]byte, error) {
	reflector := schemareflector.Reflector{}

	s, err := reflector.Reflect(Root{})
	if err != nil {
		return nil, err
	}

	return json.MarshalIndent(s, "", "  ")
}

// In a config file the alias table is written as a mapping of strings. The
// Go type is a slice because mapping order is significant, so the reflected
// array shape would be wrong here.
func (Aliases) JSONSchema() (schemareflector.Schema, error) {
	var values schemareflector.Schema
	values.AddType(schemareflector.String)

	var s schemareflector.Schema
	s.AddType(schemareflector.Object)
	s.WithAdditionalProperties(values.ToSchemaOrBool())
	return s, nil
}

// In a config file a manifest patch is an array of patch operations. The Go
// type holds the raw document bytes, which would reflect as a string.
func (Patch) JSONSchema() (schemareflector.Schema, error) {
	var s schemareflector.Schema
	s.AddType(schemareflector.Array)
	return s, nil
}

//go:generate go run ../build/gen-config-schema.go schema.json

// Package config serves the JSON schema for snowpack configuration files.
// The schema is generated from the configuration structs and embedded so
// that validation needs no files at runtime.
package config

import (
	_ "embed"
)

//go:embed "schema.json"
var schema []byte

// Schema returns the embedded configuration schema document.
func Schema() []byte {
	return schema
}

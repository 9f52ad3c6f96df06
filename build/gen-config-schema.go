// Command gen-config-schema regenerates the JSON schema that validates
// snowpack configuration files. Run it through go:generate in the config
// package whenever the configuration structs change.
package main

import (
	"log"
	"os"

	"github.com/pikapkg/snowpack/internal/config"
)

func main() {
	log.SetFlags(0)
	if len(os.Args) != 2 {
		log.Fatalf("usage: %s path/to/schema.json", os.Args[0])
	}

	bs, err := config.ReflectSchema()
	if err != nil {
		log.Fatalf("reflect config schema: %v", err)
	}
	if err := os.WriteFile(os.Args[1], bs, 0644); err != nil {
		log.Fatalf("write %s: %v", os.Args[1], err)
	}
}

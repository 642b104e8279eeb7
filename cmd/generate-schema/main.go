// Command generate-schema writes the JSON schema of the gfapi configuration
// file, with the option sets of every driver spelled out.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/invopop/jsonschema"
	"github.com/marmos91/gfapi/pkg/config"
)

func main() {
	outputFile := "gfapi.schema.json"
	if len(os.Args) > 1 {
		outputFile = os.Args[1]
	}

	schemaJSON, err := json.MarshalIndent(buildSchema(), "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling schema: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(outputFile, schemaJSON, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing schema file: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("JSON schema written to %s\n", outputFile)
}

// buildSchema reflects config.Config. The driver option maps are free-form
// in Go, so their schemas are reflected from the typed option sets and
// grafted in.
func buildSchema() *jsonschema.Schema {
	// Field names follow the mapstructure keys used in config files
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		FieldNameTag:              "mapstructure",
	}

	schema := reflector.Reflect(&config.Config{})
	schema.Title = "gfapi Configuration"
	schema.Description = "Configuration schema for gfapi clients and the gfsh command"
	schema.Version = "1.0.0"

	driver, ok := schema.Properties.Get("driver")
	if !ok {
		return schema
	}
	graft := func(name string, v any) {
		sub := reflector.Reflect(v)
		sub.Version = ""
		sub.ID = ""
		driver.Properties.Set(name, sub)
	}
	graft("sim", &config.SimOptions{})
	graft("local", &config.LocalOptions{})

	return schema
}

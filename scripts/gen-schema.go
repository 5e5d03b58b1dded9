//go:build ignore

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ormasoftchile/uirun/pkg/schema"
)

func main() {
	if err := os.MkdirAll("schemas", 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "mkdir: %v\n", err)
		os.Exit(1)
	}
	for name, gen := range map[string]func() ([]byte, error){
		"plan-v0.json":    schema.GeneratePlanJSONSchema,
		"request-v0.json": schema.GenerateRequestJSONSchema,
	} {
		data, err := gen()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error generating %s: %v\n", name, err)
			os.Exit(1)
		}
		path := filepath.Join("schemas", name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "write: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("wrote", path)
	}
}

// Command genfixtures writes the canonical Archive II fixture volumes used by
// the decoder tests, together with a manifest of their expected decode
// results.
//
// Usage:
//
//	go run ./cmd/genfixtures -out internal/archive2/testdata
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/couchcryptid/storm-radar-service/internal/archive2/archive2test"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "internal/archive2/testdata", "output directory for fixtures and manifest.json")
	flag.Parse()

	if err := os.MkdirAll(*out, 0o755); err != nil {
		return err
	}

	fixtures := archive2test.Fixtures()
	manifest := archive2test.Manifest{Fixtures: make([]archive2test.FixtureManifest, 0, len(fixtures))}
	for i := range fixtures {
		f := &fixtures[i]
		data, err := f.Build()
		if err != nil {
			return fmt.Errorf("building %s: %w", f.File, err)
		}
		if err := os.WriteFile(filepath.Join(*out, f.File), data, 0o600); err != nil {
			return fmt.Errorf("writing %s: %w", f.File, err)
		}
		m := f.Manifest()
		manifest.Fixtures = append(manifest.Fixtures, m)
		log.Printf("%s: %d bytes, %d sweeps", f.File, len(data), len(m.Sweeps))
	}

	path := filepath.Join(*out, "manifest.json")
	if err := writeJSON(path, manifest); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	log.Printf("wrote manifest: %s (%d fixtures)", path, len(manifest.Fixtures))
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}

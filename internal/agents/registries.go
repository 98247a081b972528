// In file: internal/agents/registries.go
package agents

import (
	"embed"
	"fmt"
	"io/fs"
	"os"

	"github.com/dileep-u-k/compliance-gateway/internal/tools"
)

//go:embed registries/*.json
var embeddedRegistries embed.FS

// RegistryFS returns the registry files: the embedded set when dir is empty,
// the directory otherwise.
func RegistryFS(dir string) (fs.FS, error) {
	if dir != "" {
		info, err := os.Stat(dir)
		if err != nil {
			return nil, fmt.Errorf("registry dir: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("registry dir %s is not a directory", dir)
		}
		return os.DirFS(dir), nil
	}
	return fs.Sub(embeddedRegistries, "registries")
}

// LoadRegistries loads and checks the registry of every catalog agent. Each
// registry must flag its agent's TerminalTool as terminal.
func LoadRegistries(fsys fs.FS) (map[string]*tools.Registry, error) {
	out := make(map[string]*tools.Registry)
	for _, def := range Catalog() {
		registry, err := tools.LoadRegistry(fsys, def.RegistryFile)
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", def.Name, err)
		}
		if !registry.IsTerminal(def.TerminalTool) {
			return nil, fmt.Errorf("agent %s: %w: %s is not declared terminal", def.Name, tools.ErrRegistry, def.TerminalTool)
		}
		// Builds the handler table once to catch drift between the file and the code.
		if _, err := tools.NewToolManager(registry, def.Handlers(DefaultDeps())); err != nil {
			return nil, fmt.Errorf("agent %s: %w", def.Name, err)
		}
		out[def.Name] = registry
	}
	return out, nil
}

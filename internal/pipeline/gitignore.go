package pipeline

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/vk/pipeforge/internal/genmark"
)

// WriteGitignore regenerates the module's .gitignore from its declared
// target outputs, the engine's sidecar directory, and the declaration's
// extra patterns. It is an explicit operation, never run as part of module
// loading.
func WriteGitignore(m *Module) error {
	var b strings.Builder
	b.WriteString(genmark.SidecarDir + "/\n")

	for _, t := range m.Targets() {
		rel, err := filepath.Rel(m.Dir, t.OutputPath)
		if err != nil || strings.HasPrefix(rel, "..") {
			// Outputs outside the module dir are not this module's to ignore.
			continue
		}
		b.WriteString(rel + "\n")
	}
	for _, pattern := range m.ExtraGitignore() {
		b.WriteString(pattern + "\n")
	}

	return os.WriteFile(filepath.Join(m.Dir, ".gitignore"), []byte(b.String()), 0o644)
}

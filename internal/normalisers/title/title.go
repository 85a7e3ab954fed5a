// Package title derives display titles for extracted documents.
package title

import (
	"path/filepath"
	"strings"
)

// FromFilename turns "managed_it-services.docx" into "managed it services".
func FromFilename(name string) string {
	base := filepath.Base(name)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.NewReplacer("_", " ", "-", " ").Replace(base)
}

// Or returns candidate trimmed, or the filename title when it is empty.
func Or(candidate, filename string) string {
	if t := strings.TrimSpace(candidate); t != "" {
		return t
	}
	return FromFilename(filename)
}

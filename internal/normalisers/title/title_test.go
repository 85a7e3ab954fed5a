package title

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromFilename(t *testing.T) {
	tests := map[string]string{
		"rfp.txt":                         "rfp",
		"/uploads/managed_it-services.md": "managed it services",
		"no-extension":                    "no extension",
		"archive.tar.gz":                  "archive.tar",
	}
	for in, want := range tests {
		assert.Equal(t, want, FromFilename(in), in)
	}
}

func TestOr(t *testing.T) {
	assert.Equal(t, "Tender", Or("  Tender ", "rfp.txt"))
	assert.Equal(t, "rfp", Or("   ", "rfp.txt"))
}

package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCmd_SkipsServices(t *testing.T) {
	assert.Equal(t, "true", versionCmd.Annotations[noServices])
}

func TestVersionCmd_PrintsVersion(t *testing.T) {
	tests := []struct {
		name    string
		version string
		want    string
	}{
		{"release", "1.4.0", "autorfp version 1.4.0\n"},
		{"development build", "dev", "autorfp version dev\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := version
			SetVersion(tt.version)
			t.Cleanup(func() { SetVersion(original) })

			out, err := execute(t, "version")

			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestVersionCmd_WorksWithoutServices(t *testing.T) {
	withServices(t, nil)

	out, err := execute(t, "version")

	require.NoError(t, err)
	assert.Contains(t, out, "autorfp version")
}

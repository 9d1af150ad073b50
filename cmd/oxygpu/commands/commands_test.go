package commands

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestComputeCommand(t *testing.T) {
	out, err := execute(t, "compute", "--backend", "software", "--values", "1,2,5", "--factor", "3")
	require.NoError(t, err)
	assert.Equal(t, "[3 6 15]\n", out)
}

func TestDeviceCommand(t *testing.T) {
	out, err := execute(t, "device", "--backend", "software")
	require.NoError(t, err)
	assert.Contains(t, out, "Backend: software")
	assert.Contains(t, out, "Library:")
}

func TestUnknownBackendFails(t *testing.T) {
	_, err := execute(t, "device", "--backend", "metal")
	assert.ErrorContains(t, err, "unknown backend")
}

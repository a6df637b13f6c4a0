package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestValidateAndPlan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tsched.yaml")
	require.NoError(t, os.WriteFile(path, []byte("jobs:\n  - id: a\n    timestamps: [300, 0]\n    every: 100ms\n    count: 2\n"), 0o644))

	out, err := execute(t, "validate", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "config ok: 1 job(s)")

	out, err = execute(t, "plan", "--config", path, "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"id": "a"`)
	assert.Contains(t, out, "300")

	planJSON = false
	out, err = execute(t, "plan", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "0,0,100,300")
}

func TestValidateFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tsched.yaml")
	require.NoError(t, os.WriteFile(path, []byte("jobs:\n  - id: a\n"), 0o644))
	_, err := execute(t, "validate", "--config", path)
	require.Error(t, err)
}

func TestPreviewOffsets(t *testing.T) {
	assert.Equal(t, "1,2", previewOffsets([]int64{1, 2}, 3))
	assert.Equal(t, "1,2,... +2", previewOffsets([]int64{1, 2, 3, 4}, 2))
}

package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandTree(t *testing.T) {
	root := NewRootCommand()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"tui", "sessions", "models", "login", "logout", "status", "version"} {
		assert.Contains(t, names, want)
	}
}

func TestRootShowsFirstRunHint(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CLAWSYNC_STATE_DIR", dir)
	t.Setenv("CLAWSYNC_CONFIG_PATH", "")

	root := NewRootCommand()
	b := bytes.NewBufferString("")
	root.SetOut(b)
	root.SetArgs([]string{})
	require.NoError(t, root.Execute())

	assert.Contains(t, b.String(), "No config found")
	assert.Contains(t, b.String(), "clawsync login")
}

func TestConfigFlagSetsConfigPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0600))
	t.Setenv("CLAWSYNC_CONFIG_PATH", "")

	root := NewRootCommand()
	b := bytes.NewBufferString("")
	root.SetOut(b)
	root.SetArgs([]string{"--config", path})
	require.NoError(t, root.Execute())

	assert.Equal(t, path, os.Getenv("CLAWSYNC_CONFIG_PATH"))
	assert.NotContains(t, b.String(), "No config found")
}

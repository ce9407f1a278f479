package commands

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRuntimeKeepsDeviceIdentity(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("CLAWSYNC_STATE_DIR", "")
	t.Setenv("CLAWSYNC_CONFIG_PATH", "")

	cmd := &cobra.Command{Use: "probe"}

	first, err := buildRuntime(cmd, runtimeOptions{logToFile: true})
	require.NoError(t, err)
	id := first.deviceID
	instance := first.cfg.Client.InstanceID
	first.close()

	assert.NotEmpty(t, id)
	assert.NotEmpty(t, instance)
	assert.FileExists(t, first.paths.KeyFile)
	assert.FileExists(t, first.paths.LogFile)

	second, err := buildRuntime(cmd, runtimeOptions{})
	require.NoError(t, err)
	defer second.close()

	assert.Equal(t, id, second.deviceID)
	assert.Equal(t, instance, second.cfg.Client.InstanceID)
	assert.Equal(t, "Offline", second.app.State().StatusText)
}

func TestBuildRuntimeRejectsInvalidConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("CLAWSYNC_STATE_DIR", "")
	t.Setenv("CLAWSYNC_CONFIG_PATH", "")
	t.Setenv("CLAWSYNC_GATEWAY_PORT", "70000")

	_, err := buildRuntime(&cobra.Command{Use: "probe"}, runtimeOptions{})
	assert.ErrorContains(t, err, "config.gateway.port")
}

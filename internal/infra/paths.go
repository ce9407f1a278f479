// Package infra provides infrastructure utilities.
package infra

import (
	"os"
	"path/filepath"

	"github.com/liteclaw/clawsync/internal/config"
)

// Paths holds the on-disk locations used by the client.
type Paths struct {
	StateDir string
	// SettingsFile is the plain key-value store.
	SettingsFile string
	// CredentialsFile is the sealed key-value store.
	CredentialsFile string
	// KeyFile holds the key sealing CredentialsFile.
	KeyFile string
	LogDir  string
	LogFile string
}

// ResolvePaths returns the paths under config.StateDir.
func ResolvePaths() Paths {
	return PathsAt(config.StateDir())
}

// PathsAt returns the paths under stateDir.
func PathsAt(stateDir string) Paths {
	logDir := filepath.Join(stateDir, "logs")
	return Paths{
		StateDir:        stateDir,
		SettingsFile:    filepath.Join(stateDir, "settings.json"),
		CredentialsFile: filepath.Join(stateDir, "credentials.json"),
		KeyFile:         filepath.Join(stateDir, "credentials.key"),
		LogDir:          logDir,
		LogFile:         filepath.Join(logDir, "clawsync.log"),
	}
}

// EnsureDirs creates all required directories.
func (p Paths) EnsureDirs() error {
	for _, dir := range []string{p.StateDir, p.LogDir} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return err
		}
	}
	return nil
}

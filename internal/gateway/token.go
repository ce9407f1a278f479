package gateway

import (
	"os"
	"strings"
)

// Environment variables consulted by EnvCredentials.
const (
	EnvToken    = "CLAWSYNC_GATEWAY_TOKEN"
	EnvPassword = "CLAWSYNC_GATEWAY_PASSWORD"
)

// EnvCredentials returns the gateway token and password set in the
// environment. Saved credentials take precedence over them.
func EnvCredentials() (token, password string) {
	return strings.TrimSpace(os.Getenv(EnvToken)), os.Getenv(EnvPassword)
}

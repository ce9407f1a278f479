package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvCredentials(t *testing.T) {
	t.Setenv(EnvToken, "  env-token \n")
	t.Setenv(EnvPassword, " spaced ")

	token, password := EnvCredentials()
	assert.Equal(t, "env-token", token)
	assert.Equal(t, " spaced ", password, "passwords are used verbatim")

	t.Setenv(EnvToken, "")
	t.Setenv(EnvPassword, "")
	token, password = EnvCredentials()
	assert.Empty(t, token)
	assert.Empty(t, password)
}

package conf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTestSettings() *Settings {
	s := &Settings{}
	s.Server.URL = "https://api.example.com/"
	s.Output.SQLite.Enabled = true
	s.Output.SQLite.Path = "scanpest.db"
	return s
}

func TestValidateSettings_OK(t *testing.T) {
	require.NoError(t, ValidateSettings(validTestSettings()))
}

func TestValidateSettings_MissingServerURL(t *testing.T) {
	s := validTestSettings()
	s.Server.URL = ""

	err := ValidateSettings(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.url")
}

func TestValidateSettings_NoBackend(t *testing.T) {
	s := validTestSettings()
	s.Output.SQLite.Enabled = false

	err := ValidateSettings(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no database backend")
}

func TestValidateSettings_SQLiteWithoutPath(t *testing.T) {
	s := validTestSettings()
	s.Output.SQLite.Path = ""

	err := ValidateSettings(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "output.sqlite.path")
}

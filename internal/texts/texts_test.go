package texts

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_AllKeysPresent(t *testing.T) {
	c := Default()
	for _, section := range []any{c.Announcement, c.Private, c.Notice, c.Controls} {
		v := reflect.ValueOf(section)
		for i := 0; i < v.NumField(); i++ {
			assert.NotEmpty(t, v.Field(i).String(), "%s.%s is empty", v.Type().Name(), v.Type().Field(i).Name)
		}
	}
}

func TestLoad_OverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "texts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("notice:\n  joined: \"Bienvenue!\"\n"), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Bienvenue!", c.Notice.Joined)
	assert.Equal(t, Default().Notice.Left, c.Notice.Left)
}

func TestLoad_EmptyPath(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("notice: [unclosed"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestFill(t *testing.T) {
	assert.Equal(t, "Only Carol can start, 3 joined",
		Fill("Only {creator} can start, {count} joined", "creator", "Carol", "count", "3"))
	assert.Equal(t, "no placeholders", Fill("no placeholders"))
	assert.Equal(t, "{left} alone", Fill("{left} alone", "other", "x"))
}

func TestParticipantList(t *testing.T) {
	c := Default()
	assert.Equal(t, "*1*. Alice\n*2*. Bob", c.ParticipantList([]string{"Alice", "Bob"}))
	assert.Empty(t, c.ParticipantList(nil))
}

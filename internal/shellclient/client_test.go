package shellclient

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/veilm/hnt/pkg/hnt"
)

func TestValidateSessionIDRejectsSlashAndDotDot(t *testing.T) {
	assert.NoError(t, validateSessionID("my-session"))

	for _, bad := range []string{"", "a/b", "../escape", "foo/../bar"} {
		err := validateSessionID(bad)
		assert.Error(t, err, bad)
		var sessErr *hnt.SessionError
		assert.ErrorAs(t, err, &sessErr)
		assert.Equal(t, hnt.InvalidSessionID, sessErr.Kind)
	}
}

func TestParseStatusAcceptsOptionalTrailingWhitespace(t *testing.T) {
	assert.Equal(t, 0, parseStatus([]byte("0\n")))
	assert.Equal(t, 0, parseStatus([]byte("0")))
	assert.Equal(t, 127, parseStatus([]byte("127\n")))
	assert.Equal(t, -1, parseStatus([]byte("not-a-number\n")))
}

func TestNewClientDefaultsSessionsRoot(t *testing.T) {
	c := New("")
	assert.Equal(t, hnt.DefaultSessionsRoot, c.SessionsRoot)
}

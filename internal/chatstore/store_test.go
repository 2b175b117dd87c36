package chatstore

import (
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilm/hnt/pkg/hnt"
)

func TestEscapeUnescapeRoundTrip(t *testing.T) {
	cases := []string{
		"no angle brackets here",
		"a < b < c",
		`already \< escaped`,
		"<hnt-shell>ls</hnt-shell>",
	}
	for _, c := range cases {
		assert.Equal(t, c, Unescape(Escape(c)))
	}
}

func TestWriteMessageAndListMessagesOrdering(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := New(fs, "/data/conversations")
	conv, err := store.Create()
	require.NoError(t, err)

	_, err = store.WriteMessage(conv, hnt.RoleUser, "hello")
	require.NoError(t, err)
	_, err = store.WriteMessage(conv, hnt.RoleAssistant, "hi there")
	require.NoError(t, err)

	// a stray file that doesn't match the naming grammar must be ignored
	require.NoError(t, afero.WriteFile(fs, conv+"/notes.txt", []byte("ignored"), 0644))
	require.NoError(t, afero.WriteFile(fs, conv+"/garbage-user.md", []byte("ignored"), 0644))

	messages, err := store.ListMessages(conv)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Less(t, messages[0].Timestamp, messages[1].Timestamp)
	assert.Equal(t, hnt.RoleUser, messages[0].Role)
	assert.Equal(t, hnt.RoleAssistant, messages[1].Role)
}

func TestPackEscapesAngleBrackets(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := New(fs, "/data/conversations")
	conv, err := store.Create()
	require.NoError(t, err)

	_, err = store.WriteMessage(conv, hnt.RoleUser, "please run <hnt-shell>ls</hnt-shell>")
	require.NoError(t, err)

	var sb strings.Builder
	require.NoError(t, store.Pack(conv, &sb, false))

	packed := sb.String()
	assert.Contains(t, packed, "<hnt-user>")
	assert.Contains(t, packed, `please run \<hnt-shell>ls\</hnt-shell>`)
	assert.Contains(t, packed, "</hnt-user>\n")
}

func TestPackIgnoresReasoning(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := New(fs, "/data/conversations")
	conv, err := store.Create()
	require.NoError(t, err)

	_, err = store.WriteMessage(conv, hnt.RoleAssistantReasoning, "thinking...")
	require.NoError(t, err)
	_, err = store.WriteMessage(conv, hnt.RoleAssistant, "done")
	require.NoError(t, err)

	var sb strings.Builder
	require.NoError(t, store.Pack(conv, &sb, true))
	assert.NotContains(t, sb.String(), "hnt-assistant-reasoning")
	assert.Contains(t, sb.String(), "<hnt-assistant>done</hnt-assistant>")
}

func TestFindLatestIsLexicographicMax(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := New(fs, "/data/conversations")
	require.NoError(t, fs.MkdirAll("/data/conversations/100", 0755))
	require.NoError(t, fs.MkdirAll("/data/conversations/200", 0755))
	require.NoError(t, fs.MkdirAll("/data/conversations/50", 0755))

	latest, err := store.FindLatest()
	require.NoError(t, err)
	// "50" sorts after "100" and "200" as a string.
	assert.Equal(t, "/data/conversations/50", latest)
}

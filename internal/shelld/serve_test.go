package shelld

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePayloadSplitsFIFOPathsAndScript(t *testing.T) {
	payload := "/tmp/headlesh_out_1\n/tmp/headlesh_err_1\n/tmp/headlesh_status_1\necho hello\necho world\n"
	req, err := parsePayload([]byte(payload))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/headlesh_out_1", req.stdoutFIFO)
	assert.Equal(t, "/tmp/headlesh_err_1", req.stderrFIFO)
	assert.Equal(t, "/tmp/headlesh_status_1", req.statusFIFO)
	assert.Equal(t, "echo hello\necho world\n", req.script)
}

func TestParsePayloadTruncatedFails(t *testing.T) {
	_, err := parsePayload([]byte("only-one-line"))
	assert.Error(t, err)
}

func TestLintScriptAcceptsValidScript(t *testing.T) {
	assert.Equal(t, "", lintScript("echo hello && ls -la"))
}

func TestLintScriptReportsUnparsableScript(t *testing.T) {
	assert.NotEqual(t, "", lintScript("if [ 1 -eq 1"))
}

package agentloop

import (
	"context"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilm/hnt/internal/chatstore"
	"github.com/veilm/hnt/internal/llmstream"
	"github.com/veilm/hnt/pkg/hnt"
)

func TestExtractShellBlockLastMatchWins(t *testing.T) {
	content := "plan...<hnt-shell>ls</hnt-shell> afterthought <hnt-shell>pwd</hnt-shell> done"
	script, found := ExtractShellBlock(content)
	require.True(t, found)
	assert.Equal(t, "pwd", script)
}

func TestExtractShellBlockNoneFound(t *testing.T) {
	_, found := ExtractShellBlock("just some prose")
	assert.False(t, found)
}

func TestEscapeBackticksNeutralizesCommandSubstitution(t *testing.T) {
	got := EscapeBackticks("echo `date`")
	assert.Equal(t, "echo \\`date\\`", got)
}

func TestEscapeBackticksLeavesAlreadyEscapedAlone(t *testing.T) {
	input := "echo \\`date\\`"
	got := EscapeBackticks(input)
	assert.Equal(t, input, got)
}

func TestComputeTurnCountersOnResume(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := chatstore.New(fs, "/conv-base")
	conv, err := store.Create()
	require.NoError(t, err)

	_, err = store.WriteMessage(conv, hnt.RoleUser, "<user_request>one</user_request>")
	require.NoError(t, err)
	_, err = store.WriteMessage(conv, hnt.RoleAssistant, "<hnt-shell>ls</hnt-shell>")
	require.NoError(t, err)
	_, err = store.WriteMessage(conv, hnt.RoleUser, "<user_request>two</user_request>")
	require.NoError(t, err)

	human, assistant, err := ComputeTurnCounters(store, conv)
	require.NoError(t, err)
	assert.Equal(t, 3, human)
	assert.Equal(t, 2, assistant)
}

func TestResolveSystemPromptPrefersFileContent(t *testing.T) {
	fs := afero.NewOsFs()
	dir := t.TempDir()
	path := dir + "/system.md"
	require.NoError(t, afero.WriteFile(fs, path, []byte("be terse"), 0644))

	got, err := ResolveSystemPrompt(path)
	require.NoError(t, err)
	assert.Equal(t, "be terse", got)

	got, err = ResolveSystemPrompt("just a literal prompt")
	require.NoError(t, err)
	assert.Equal(t, "just a literal prompt", got)

	got, err = ResolveSystemPrompt("")
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

// fakeShell is a ShellExecutor that scripts canned responses per call.
type fakeShell struct {
	calls   []string
	outputs []hnt.ExecOutput
}

func (f *fakeShell) ExecCaptured(sessionID, script string) (hnt.ExecOutput, error) {
	f.calls = append(f.calls, script)
	if len(f.outputs) == 0 {
		return hnt.ExecOutput{}, nil
	}
	out := f.outputs[0]
	f.outputs = f.outputs[1:]
	return out, nil
}

// fakePrompter always auto-executes and never re-asks.
type fakePrompter struct {
	onNoCommand func() (NoCommandDecision, string, error)
}

func (f *fakePrompter) Confirm(script string) (ConfirmDecision, error) {
	return ConfirmExecute, nil
}

func (f *fakePrompter) OnNoCommand() (NoCommandDecision, string, error) {
	if f.onNoCommand != nil {
		return f.onNoCommand()
	}
	return NoCommandQuit, "", nil
}

func (f *fakePrompter) OnStreamError(err error) (StreamErrorDecision, error) {
	return StreamErrorAbort, nil
}

// sseStream returns a StreamFunc that yields each block in sequence,
// one per call, repeating the last block forever once exhausted.
func sseStream(blocks ...string) StreamFunc {
	var calls int
	return func(ctx context.Context, model, prompt string) (*llmstream.Decoder, error) {
		idx := calls
		if idx >= len(blocks) {
			idx = len(blocks) - 1
		}
		calls++
		return llmstream.NewDecoder(strings.NewReader(blocks[idx])), nil
	}
}

func sseBlock(content string) string {
	return "data: {\"choices\":[{\"delta\":{\"content\":" + jsonQuote(content) + "}}]}\n\n" +
		"data: [DONE]\n\n"
}

func jsonQuote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

func TestRunSingleTurnEchoRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := chatstore.New(fs, "/conv-base")
	conv, err := store.Create()
	require.NoError(t, err)

	shell := &fakeShell{outputs: []hnt.ExecOutput{
		{Stdout: "hi\n", ExitStatus: 0},
		{Stdout: "/tmp\n", ExitStatus: 0},
	}}

	loop := &Loop{
		Store:     store,
		Shell:     shell,
		SessionID: "test",
		Stream: sseStream(
			sseBlock("<hnt-shell>echo hi</hnt-shell>"),
			sseBlock("all done, no more commands"),
		),
		Prompt: &fakePrompter{},
		Config: Config{NoConfirm: true},
	}

	result, err := loop.Run(context.Background(), conv, "say hi")
	require.NoError(t, err)
	assert.Equal(t, "quit", result.Reason)
	assert.Equal(t, 0, result.LastExitStatus)

	messages, err := store.ListMessages(conv)
	require.NoError(t, err)
	require.Len(t, messages, 4) // user_request, assistant, shell-results, final assistant

	body, err := store.ReadMessage(messages[0].Path)
	require.NoError(t, err)
	assert.Equal(t, "<user_request>say hi</user_request>", body)

	resultBody, err := store.ReadMessage(messages[2].Path)
	require.NoError(t, err)
	assert.Contains(t, resultBody, "<stdout>hi\n</stdout>")
	assert.Equal(t, []string{"echo hi", "pwd"}, shell.calls)
}

func TestRunNonzeroExitIsNotAnError(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := chatstore.New(fs, "/conv-base")
	conv, err := store.Create()
	require.NoError(t, err)

	shell := &fakeShell{outputs: []hnt.ExecOutput{
		{Stderr: "boom\n", ExitStatus: 1},
		{Stdout: "/tmp\n", ExitStatus: 0},
	}}

	loop := &Loop{
		Store:     store,
		Shell:     shell,
		SessionID: "test",
		Stream: sseStream(
			sseBlock("<hnt-shell>false</hnt-shell>"),
			sseBlock("no more commands"),
		),
		Prompt: &fakePrompter{},
		Config: Config{NoConfirm: true},
	}

	result, err := loop.Run(context.Background(), conv, "fail please")
	require.NoError(t, err)
	assert.Equal(t, 1, result.LastExitStatus)

	messages, err := store.ListMessages(conv)
	require.NoError(t, err)
	// The shell-results message is followed by the final assistant reply.
	resultBody, err := store.ReadMessage(messages[len(messages)-2].Path)
	require.NoError(t, err)
	assert.Contains(t, resultBody, "<exit_code>1</exit_code>")
}

func TestRunNoCommandQuitsWithoutExecuting(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := chatstore.New(fs, "/conv-base")
	conv, err := store.Create()
	require.NoError(t, err)

	shell := &fakeShell{}
	loop := &Loop{
		Store:     store,
		Shell:     shell,
		SessionID: "test",
		Stream:    sseStream(sseBlock("just thinking out loud, no command yet")),
		Prompt:    &fakePrompter{},
		Config:    Config{NoConfirm: true},
	}

	result, err := loop.Run(context.Background(), conv, "think about it")
	require.NoError(t, err)
	assert.Equal(t, "quit", result.Reason)
	assert.Empty(t, shell.calls)
}

func TestRunPrimesFreshConversationWithInfoFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := chatstore.New(fs, "/conv-base")
	conv, err := store.Create()
	require.NoError(t, err)

	infoPath := t.TempDir() + "/HNT.md"
	require.NoError(t, afero.WriteFile(afero.NewOsFs(), infoPath, []byte("project facts"), 0644))

	shell := &fakeShell{}
	loop := &Loop{
		Store:     store,
		Shell:     shell,
		SessionID: "test",
		Stream:    sseStream(sseBlock("no command here")),
		Prompt:    &fakePrompter{},
		Config:    Config{NoConfirm: true, InfoFilePath: infoPath},
	}

	_, err = loop.Run(context.Background(), conv, "go")
	require.NoError(t, err)

	messages, err := store.ListMessages(conv)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(messages), 2)
	body, err := store.ReadMessage(messages[0].Path)
	require.NoError(t, err)
	assert.Equal(t, "<info>project facts</info>", body)
}

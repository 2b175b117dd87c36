package applier

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBlocksBasic(t *testing.T) {
	text := "some prose\nsrc/f.txt\n<<<<<<< TARGET\nB\n=======\nX\nY\n>>>>>>> REPLACE\nmore prose"
	blocks := ParseBlocks(text)
	require.Len(t, blocks, 1)
	assert.Equal(t, "src/f.txt", blocks[0].RelativePath)
	assert.Equal(t, []string{"B"}, blocks[0].Target)
	assert.Equal(t, []string{"X", "Y"}, blocks[0].Replace)
}

func TestParseBlocksStopsGracefullyOnTruncation(t *testing.T) {
	text := "f.txt\n<<<<<<< TARGET\nB\n=======\nX\n"
	blocks := ParseBlocks(text)
	assert.Len(t, blocks, 0)
}

func TestParseBlocksMultipleBlocks(t *testing.T) {
	text := "a.txt\n<<<<<<< TARGET\n1\n=======\n2\n>>>>>>> REPLACE\n" +
		"b.txt\n<<<<<<< TARGET\n3\n=======\n4\n>>>>>>> REPLACE\n"
	blocks := ParseBlocks(text)
	require.Len(t, blocks, 2)
	assert.Equal(t, "a.txt", blocks[0].RelativePath)
	assert.Equal(t, "b.txt", blocks[1].RelativePath)
}

func TestApplyUniqueReplace(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/proj/f.txt", []byte("A\nB\nC\n"), 0644))

	blob := "f.txt\n<<<<<<< TARGET\nB\n=======\nX\nY\n>>>>>>> REPLACE\n"
	statuses, err := Apply(fs, []string{"/proj/f.txt"}, blob, Options{})
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.True(t, statuses[0].OK)
	assert.Equal(t, "[0] OK: f.txt", statuses[0].String())

	data, err := afero.ReadFile(fs, "/proj/f.txt")
	require.NoError(t, err)
	assert.Equal(t, "A\nX\nY\nC\n", string(data))
}

func TestApplyDuplicateTargetFails(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/proj/f.txt", []byte("A\nA\n"), 0644))

	blob := "f.txt\n<<<<<<< TARGET\nA\n=======\nX\n>>>>>>> REPLACE\n"
	statuses, err := Apply(fs, []string{"/proj/f.txt"}, blob, Options{})
	require.Error(t, err)
	require.Len(t, statuses, 1)
	assert.False(t, statuses[0].OK)
	assert.Contains(t, statuses[0].Message, "target found 2 times")

	data, err := afero.ReadFile(fs, "/proj/f.txt")
	require.NoError(t, err)
	assert.Equal(t, "A\nA\n", string(data), "file must be unchanged on failure")
}

func TestApplyCreatesNewFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/proj/existing.txt", []byte("x\n"), 0644))

	blob := "new.txt\n<<<<<<< TARGET\n=======\nhello\n>>>>>>> REPLACE\n"
	statuses, err := Apply(fs, []string{"/proj/existing.txt"}, blob, Options{})
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.True(t, statuses[0].Created)

	data, err := afero.ReadFile(fs, "/proj/new.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
}

func TestApplyCreationDisallowed(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/proj/existing.txt", []byte("x\n"), 0644))

	blob := "new.txt\n<<<<<<< TARGET\n=======\nhello\n>>>>>>> REPLACE\n"
	statuses, err := Apply(fs, []string{"/proj/existing.txt"}, blob, Options{DisallowCreating: true})
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.False(t, statuses[0].OK)
	assert.False(t, statuses[0].Created)
	assert.Contains(t, statuses[0].Message, "disallow-creating")

	exists, _ := afero.Exists(fs, "/proj/new.txt")
	assert.False(t, exists)
}

func TestApplyTargetNotFound(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/proj/f.txt", []byte("A\nB\nC\n"), 0644))

	blob := "f.txt\n<<<<<<< TARGET\nZ\n=======\nX\n>>>>>>> REPLACE\n"
	statuses, err := Apply(fs, []string{"/proj/f.txt"}, blob, Options{})
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.False(t, statuses[0].OK)
	assert.Contains(t, statuses[0].Message, "target not found")
}

func TestApplyIdempotentOnSecondApplication(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/proj/f.txt", []byte("A\nB\nC\n"), 0644))

	blob := "f.txt\n<<<<<<< TARGET\nB\n=======\nX\n>>>>>>> REPLACE\n"
	_, err := Apply(fs, []string{"/proj/f.txt"}, blob, Options{})
	require.NoError(t, err)

	data, err := afero.ReadFile(fs, "/proj/f.txt")
	require.NoError(t, err)
	assert.Equal(t, "A\nX\nC\n", string(data))

	// Re-applying the same block now fails (target "B" no longer present)
	// rather than silently corrupting the file further.
	statuses, err := Apply(fs, []string{"/proj/f.txt"}, blob, Options{})
	require.NoError(t, err)
	assert.False(t, statuses[0].OK)
}

func TestPreprocessStripsThinkBlock(t *testing.T) {
	blob := "<think>reasoning here</think>f.txt\n<<<<<<< TARGET\nB\n=======\nX\n>>>>>>> REPLACE\n"
	got := preprocess(blob, true)
	assert.NotContains(t, got, "<think>")
	assert.Contains(t, got, "f.txt")
}

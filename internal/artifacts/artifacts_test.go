package artifacts

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_CreatesLayout(t *testing.T) {
	root := t.TempDir()
	dir, err := Open(root, "doc1")
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(root, "doc1", "logs"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, filepath.Join(root, "doc1", FilePlan), dir.File(FilePlan))
}

func TestWriteJSON_ReadJSONRoundTrip(t *testing.T) {
	dir, err := Open(t.TempDir(), "doc1")
	require.NoError(t, err)

	type record struct {
		Label string `json:"label"`
		Score int    `json:"score"`
	}
	require.NoError(t, dir.WriteJSON(FilePlan, record{Label: "premi", Score: 3}))

	var got record
	require.NoError(t, dir.ReadJSON(FilePlan, &got))
	assert.Equal(t, record{Label: "premi", Score: 3}, got)

	// Indented output ending in a newline, for diff-friendly artifacts.
	raw, err := dir.ReadRaw(FilePlan)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "  \"label\": \"premi\"")
	assert.Equal(t, byte('\n'), raw[len(raw)-1])
}

func TestReadJSON_MissingFile(t *testing.T) {
	dir, err := Open(t.TempDir(), "doc1")
	require.NoError(t, err)

	var v any
	err = dir.ReadJSON(FilePlan, &v)
	var missing *MissingInputError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "doc1", missing.DocID)
	assert.Equal(t, FilePlan, missing.Name)
}

func TestRequire(t *testing.T) {
	dir, err := Open(t.TempDir(), "doc1")
	require.NoError(t, err)
	require.NoError(t, dir.WriteJSON(FileSegments, []string{}))

	assert.NoError(t, dir.Require(FileSegments))

	err = dir.Require(FileSegments, FilePlan)
	var missing *MissingInputError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, FilePlan, missing.Name)
}

func TestAppendJSONL_ReadBack(t *testing.T) {
	dir, err := Open(t.TempDir(), "doc1")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, dir.AppendJSONL(FileSkimResults, map[string]int{"n": i}))
	}

	var got []int
	err = dir.ReadJSONL(FileSkimResults, func(line []byte) error {
		var v struct {
			N int `json:"n"`
		}
		if err := json.Unmarshal(line, &v); err != nil {
			return err
		}
		got = append(got, v.N)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, got)
}

func TestReadJSONL_MissingFileYieldsNothing(t *testing.T) {
	dir, err := Open(t.TempDir(), "doc1")
	require.NoError(t, err)

	called := false
	require.NoError(t, dir.ReadJSONL(FileSkimResults, func([]byte) error {
		called = true
		return nil
	}))
	assert.False(t, called)
}

func TestWriteRaw_ReplacesAtomically(t *testing.T) {
	dir, err := Open(t.TempDir(), "doc1")
	require.NoError(t, err)

	require.NoError(t, dir.WriteRaw(FileMarkdownV2, []byte("first\n")))
	require.NoError(t, dir.WriteRaw(FileMarkdownV2, []byte("second\n")))

	raw, err := dir.ReadRaw(FileMarkdownV2)
	require.NoError(t, err)
	assert.Equal(t, "second\n", string(raw))

	// No stray temp files remain next to the artifact.
	entries, err := os.ReadDir(dir.Path())
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp-")
	}
}

package dir

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplaceFile(t *testing.T) {
	t.Run("Overwrites Existing File", func(t *testing.T) {
		filename := filepath.Join(t.TempDir(), "doc.json")
		require.NoError(t, os.WriteFile(filename, []byte("initial"), 0o644))
		require.NoError(t, replaceFile(filename, []byte("overwritten")))

		got, err := os.ReadFile(filename)
		require.NoError(t, err)
		assert.Equal(t, "overwritten", string(got))

		entries, err := os.ReadDir(filepath.Dir(filename))
		require.NoError(t, err)
		assert.Len(t, entries, 1, "temp file left behind")

		info, err := os.Stat(filename)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(filePerm), info.Mode().Perm())
	})

	t.Run("Staging Files Are Recognised", func(t *testing.T) {
		assert.True(t, isTempFile(TempFilePrefix+"123"))
		assert.False(t, isTempFile("doc.json"))
	})

	t.Run("Fails if Directory Missing", func(t *testing.T) {
		filename := filepath.Join(t.TempDir(), "missing", "doc.json")
		assert.Error(t, replaceFile(filename, []byte("x")))
	})
}

func TestNameEncoding(t *testing.T) {
	cases := []struct {
		id   any
		stem string
		back string
	}{
		{"plain", "plain", "plain"},
		{"a/b", "a%2Fb", "a/b"},
		{"~tilde", "%7Etilde", "~tilde"},
		{"..", "%2E.", ".."},
		{float64(7), "~7", "7"},
		{true, "~true", "true"},
	}
	for _, tc := range cases {
		stem, err := encodeName(tc.id)
		require.NoError(t, err)
		assert.Equal(t, tc.stem, stem)

		back, err := decodeName(stem)
		require.NoError(t, err)
		assert.Equal(t, tc.back, back)
	}

	_, err := encodeName("")
	assert.Error(t, err)
}

func TestYAMLNormalisesNumbers(t *testing.T) {
	doc, err := FormatYAML.unmarshal([]byte("_id: x\ncount: 3\nnested:\n  list: [1, two]\n"))
	require.NoError(t, err)
	assert.Equal(t, float64(3), doc["count"])
	assert.Equal(t, map[string]any{"list": []any{float64(1), "two"}}, doc["nested"])
}

func TestDebouncer_KeepsLastCallPerKey(t *testing.T) {
	d := newDebouncer(20 * time.Millisecond)
	var first, last atomic.Int32

	d.add("k", func() { first.Add(1) })
	d.add("k", func() { last.Add(1) })

	assert.Eventually(t, func() bool { return last.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(0), first.Load())

	d.add("k", func() { first.Add(1) })
	d.stopAndWait()
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(0), first.Load())
}

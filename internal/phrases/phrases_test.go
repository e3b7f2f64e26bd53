package phrases

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintableASCII(t *testing.T) {
	assert.True(t, PrintableASCII("hello, world!"))
	for _, phrase := range []string{"", "résumé", "don’t", "tab\there"} {
		assert.False(t, PrintableASCII(phrase), phrase)
	}
}

func TestLoadPhrases(t *testing.T) {
	path := filepath.Join(t.TempDir(), "phrases.txt")
	body := "# prompts\n\n  the   quick fox  \nnaïve café\nsecond line\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	got, err := LoadPhrases(path, PrintableASCII)
	require.NoError(t, err)
	assert.Equal(t, []string{"the quick fox", "second line"}, got)

	all, err := LoadPhrases(path, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestLoadPhrasesEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "phrases.txt")
	require.NoError(t, os.WriteFile(path, []byte("# only comments\n"), 0o644))
	_, err := LoadPhrases(path, nil)
	assert.Error(t, err)
}

func TestResolveFallsBackToDefaults(t *testing.T) {
	got, err := Resolve(filepath.Join(t.TempDir(), "absent.txt"), PrintableASCII)
	require.NoError(t, err)
	assert.Equal(t, Defaults(), got)

	got, err = Resolve("", nil)
	require.NoError(t, err)
	assert.Equal(t, Defaults(), got)
}

func TestDefaultsAreCopies(t *testing.T) {
	d := Defaults()
	d[0] = "changed"
	assert.NotEqual(t, "changed", Defaults()[0])
	for _, p := range Defaults() {
		assert.True(t, PrintableASCII(p), p)
	}
	assert.NotEmpty(t, Words())
}

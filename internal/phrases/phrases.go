// Package phrases loads enrollment prompt texts.
package phrases

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
)

var defaultPhrases = []string{
	"the quick brown fox jumps over the lazy dog",
	"pack my box with five dozen liquor jugs",
	"sphinx of black quartz judge my vow",
	"how vexingly quick daft zebras jump",
	"bright vixens jump while dozy fowl quack",
	"my typing rhythm is my second password",
	"a steady hand writes the same line twice",
	"every morning the harbor fills with small boats",
}

// defaultWords feeds generated prompts when no phrase file exists.
var defaultWords = []string{
	"time", "river", "light", "stone", "paper", "window", "garden", "winter",
	"market", "silver", "orange", "planet", "simple", "letter", "number", "travel",
	"rhythm", "quiet", "forest", "bridge", "castle", "copper", "thunder", "meadow",
}

// Defaults returns a copy of the built-in phrases.
func Defaults() []string {
	return append([]string(nil), defaultPhrases...)
}

// Words returns a copy of the built-in vocabulary.
func Words() []string {
	return append([]string(nil), defaultWords...)
}

// FilterFunc returns true when a phrase should be kept.
type FilterFunc func(string) bool

// PrintableASCII keeps phrases made only of printable ASCII, which can be typed
// on any layout without composition.
func PrintableASCII(phrase string) bool {
	if phrase == "" {
		return false
	}
	for i := 0; i < len(phrase); i++ {
		ch := phrase[i]
		if ch < ' ' || ch > '~' {
			return false
		}
	}
	return true
}

// LoadPhrases reads one phrase per line. Blank lines and lines starting with
// '#' are skipped, as are lines rejected by filter when it is non-nil.
func LoadPhrases(path string, filter FilterFunc) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			// Best-effort close for read-only phrase file.
			_ = cerr
		}
	}()

	var phrases []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.Join(strings.Fields(scanner.Text()), " ")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if filter != nil && !filter(line) {
			continue
		}
		phrases = append(phrases, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(phrases) == 0 {
		return nil, fmt.Errorf("phrase file is empty")
	}
	return phrases, nil
}

// Resolve loads path, falling back to Defaults when the file does not exist.
func Resolve(path string, filter FilterFunc) ([]string, error) {
	if path == "" {
		return Defaults(), nil
	}
	phrases, err := LoadPhrases(path, filter)
	if errors.Is(err, os.ErrNotExist) {
		return Defaults(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load phrases from %s: %w", path, err)
	}
	return phrases, nil
}

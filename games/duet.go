// Package games holds the word pools the duetbox games draw from.
//
// A pool is a de-duplicated list of candidate words; the engine has no
// opinion on where it came from. The built-in list ships embedded in the
// binary, and --word-list swaps in a newline-delimited file instead.
package games

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
)

//go:embed words.txt
var defaultWords string

// Default returns the built-in word pool.
func Default() []string {
	return parse(defaultWords)
}

// LoadFile reads a newline-delimited word list from path. Blank lines are
// skipped, surrounding whitespace is trimmed, words are uppercased, and
// duplicates are dropped, keeping first occurrence order.
func LoadFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading word list: %w", err)
	}
	return parse(string(data)), nil
}

func parse(data string) []string {
	seen := make(map[string]bool)
	var words []string

	for _, line := range strings.Split(data, "\n") {
		word := strings.ToUpper(strings.TrimSpace(line))
		if word == "" || seen[word] {
			continue
		}
		seen[word] = true
		words = append(words, word)
	}

	return words
}

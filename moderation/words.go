package moderation

import (
	"bufio"
	"bytes"
	_ "embed"
	"strings"
)

//go:embed censored/en.txt
var embeddedWords []byte

// EmbeddedWords returns the default censored wordlist shipped with the
// binary, one word per line, '#' lines ignored.
func EmbeddedWords() []string {
	var words []string
	scanner := bufio.NewScanner(bytes.NewReader(embeddedWords))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	return words
}

package moderation

import (
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

// Moderator masks forbidden patterns in public-room content using an
// Aho-Corasick automaton, so a single pass covers the whole wordlist.
type Moderator struct {
	matcher      *goahocorasick.Machine
	censoredChar rune
}

type textMapping struct {
	normalized []rune
	origIdx    []int
}

// NewModerator builds the automaton from a normalized version of the
// provided censored words list.
func NewModerator(censoredWords []string, censoredChar rune) (*Moderator, error) {
	patterns := make([][]rune, 0, len(censoredWords))
	for _, word := range censoredWords {
		normalized := normalizeRunes([]rune(word))
		if len(normalized) > 0 {
			patterns = append(patterns, normalized)
		}
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}
	return &Moderator{matcher: m, censoredChar: censoredChar}, nil
}

// Censor replaces the original characters of any matched pattern with the
// configured replacement rune while preserving spacing and punctuation.
func (m *Moderator) Censor(original string) string {
	mapping := normalize(original)
	if len(mapping.normalized) == 0 {
		return original
	}

	spans := m.matcher.MultiPatternSearch(mapping.normalized, false)
	if len(spans) == 0 {
		return original
	}

	origRunes := []rune(original)
	for _, span := range spans {
		normStart := span.Pos
		normEnd := normStart + len(span.Word)
		if normStart < 0 || normEnd > len(mapping.origIdx) {
			continue
		}
		for i := normStart; i < normEnd; i++ {
			origRunes[mapping.origIdx[i]] = m.censoredChar
		}
	}
	return string(origRunes)
}

// normalize lowercases letters and digits and records, for every kept
// rune, its index in the original text so matches can be mapped back.
func normalize(original string) textMapping {
	runes := []rune(original)
	mapping := textMapping{
		normalized: make([]rune, 0, len(runes)),
		origIdx:    make([]int, 0, len(runes)),
	}
	for i, r := range runes {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			mapping.normalized = append(mapping.normalized, unicode.ToLower(r))
			mapping.origIdx = append(mapping.origIdx, i)
		}
	}
	return mapping
}

func normalizeRunes(runes []rune) []rune {
	normalized := make([]rune, 0, len(runes))
	for _, r := range runes {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			normalized = append(normalized, unicode.ToLower(r))
		}
	}
	return normalized
}

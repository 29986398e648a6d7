package moderation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestModerator(t *testing.T, words ...string) *Moderator {
	t.Helper()
	moderator, err := NewModerator(words, '*')
	require.NoError(t, err)
	return moderator
}

func TestCensor_Masks_Matched_Words(t *testing.T) {
	req := require.New(t)
	moderator := newTestModerator(t, "darn", "heck")

	req.Equal("what the ****", moderator.Censor("what the darn"))
	req.Equal("****, that ****ing thing", moderator.Censor("darn, that hecking thing"))
	req.Equal("nothing to see here", moderator.Censor("nothing to see here"))
}

func TestCensor_Is_Case_Insensitive(t *testing.T) {
	req := require.New(t)
	moderator := newTestModerator(t, "darn")

	req.Equal("****", moderator.Censor("DaRn"))
	req.Equal("****", moderator.Censor("DARN"))
}

func TestCensor_Sees_Through_Separators(t *testing.T) {
	req := require.New(t)
	moderator := newTestModerator(t, "darn")

	// Punctuation and spacing survive, only the matched runes are masked
	req.Equal("* * * *", moderator.Censor("d a r n"))
	req.Equal("*.*.*.*", moderator.Censor("d.a.r.n"))
}

func TestCensor_Leaves_Empty_And_Symbolic_Text_Alone(t *testing.T) {
	req := require.New(t)
	moderator := newTestModerator(t, "darn")

	req.Equal("", moderator.Censor(""))
	req.Equal("!!! ???", moderator.Censor("!!! ???"))
}

func TestEmbeddedWords_Skips_Comments_And_Blanks(t *testing.T) {
	req := require.New(t)

	words := EmbeddedWords()
	req.NotEmpty(words)
	for _, word := range words {
		req.NotEmpty(word)
		req.NotContains(word, "#")
	}
}

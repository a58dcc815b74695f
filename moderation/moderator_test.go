package moderation

import (
	"chat-presence/errors"
	"log/slog"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func newModerator(t *testing.T, words ...string) *Moderator {
	t.Helper()
	mod, err := NewModerator(words, '#', logs.GetLoggerFromLevel(slog.LevelError))
	require.NoError(t, err)
	return mod
}

func TestModerator_Censor_Chat_Messages(t *testing.T) {
	mod := newModerator(t, "idiot", "loser", "crétin")

	tests := []struct {
		name     string
		content  string
		expected string
		words    []string
	}{
		{
			name:     "Insult in a sentence",
			content:  "hello you idiot, see you tomorrow",
			expected: "hello you #####, see you tomorrow",
			words:    []string{"idiot"},
		},
		{
			name:     "Shouted with dots and lookalikes",
			content:  "YOU ARE AN I.D.1.0.T",
			expected: "YOU ARE AN #########",
			words:    []string{"idiot"},
		},
		{
			name:     "Spelled out across spaces",
			content:  "what a l o $ e r",
			expected: "what a #########",
			words:    []string{"loser"},
		},
		{
			name:     "Several insults keep their order",
			content:  "loser! idiot!",
			expected: "#####! #####!",
			words:    []string{"loser", "idiot"},
		},
		{
			name:     "Accented dictionary word",
			content:  "quel Crétin ce bot",
			expected: "quel ###### ce bot",
			words:    []string{"crétin"},
		},
		{
			name:     "Emoji and symbols around a match stay",
			content:  "🙂 idiot 🙂",
			expected: "🙂 ##### 🙂",
			words:    []string{"idiot"},
		},
		{
			name:     "Clean message",
			content:  "see you in room 12",
			expected: "see you in room 12",
		},
		{
			name:     "Only punctuation",
			content:  "?!...",
			expected: "?!...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			censored, words := mod.Censor(tt.content)
			req.Equal(tt.expected, censored)
			req.Equal(tt.words, words)
		})
	}
}

func TestNewModerator_Noise_Only_Dictionary(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelError)

	// Given a dictionary whose entries fold to nothing
	_, err := NewModerator([]string{"...", " - ", "#", ""}, '*', log)

	// Then there is nothing to match
	req.ErrorIs(err, errors.ErrEmptyWords)

	// And an empty dictionary is refused the same way
	_, err = NewModerator(nil, '*', log)
	req.ErrorIs(err, errors.ErrEmptyWords)
}

func TestNewModerator_Skips_Noise_Words(t *testing.T) {
	req := require.New(t)

	// Given a dictionary mixing a real word with noise entries
	mod := newModerator(t, "***", "idiot", "--")

	// Then the real word is still censored and noise in messages is untouched
	censored, words := mod.Censor("*** idiot --")
	req.Equal("*** ##### --", censored)
	req.Equal([]string{"idiot"}, words)
}

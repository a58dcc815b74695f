package moderation

import (
	"chat-presence/errors"
	"log/slog"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

// lookalikes maps digits and symbols used to dodge the filter to the letter they imitate.
var lookalikes = map[rune]rune{
	'4': 'a', '@': 'a',
	'3': 'e', '€': 'e',
	'1': 'i', '!': 'i', '|': 'i',
	'0': 'o',
	'5': 's', '$': 's',
}

// Moderator masks censored words in chat message content before it is stored and broadcast.
// Matching ignores case, punctuation, spacing and lookalike characters, so "I.D.1.O.T"
// is caught by "idiot". The spacing of the message is kept, only matched runes are masked.
type Moderator struct {
	log     *slog.Logger
	matcher *goahocorasick.Machine
	mask    rune
}

// NewModerator builds the matcher from the censored words.
// Words without a single letter once folded are skipped; ErrEmptyWords is returned
// when nothing is left to match.
func NewModerator(censoredWords []string, mask rune, log *slog.Logger) (*Moderator, error) {
	patterns := make([][]rune, 0, len(censoredWords))
	for _, word := range censoredWords {
		pattern, _ := fold(word)
		if len(pattern) == 0 {
			log.Debug("Skipping censored word without letters", "word", word)
			continue
		}
		patterns = append(patterns, pattern)
	}
	if len(patterns) == 0 {
		return nil, errors.ErrEmptyWords
	}

	matcher := new(goahocorasick.Machine)
	if err := matcher.Build(patterns); err != nil {
		return nil, err
	}
	log.Debug("Moderator ready", "patterns", len(patterns))
	return &Moderator{log: log, matcher: matcher, mask: mask}, nil
}

// Censor returns content with every censored word masked, and the matched words in order.
// Content without any match is returned unchanged with a nil slice.
func (m *Moderator) Censor(content string) (string, []string) {
	folded, positions := fold(content)
	if len(folded) == 0 {
		return content, nil
	}
	matches := m.matcher.MultiPatternSearch(folded, false)
	if len(matches) == 0 {
		return content, nil
	}

	runes := []rune(content)
	words := make([]string, 0, len(matches))
	for _, match := range matches {
		last := match.Pos + len(match.Word) - 1
		if match.Pos < 0 || last >= len(positions) {
			continue
		}
		// Noise between the first and last matched rune is masked too.
		for i := positions[match.Pos]; i <= positions[last]; i++ {
			runes[i] = m.mask
		}
		words = append(words, string(match.Word))
	}
	return string(runes), words
}

// fold lowercases text, resolves lookalikes and drops punctuation, spaces and symbols.
// positions[i] is the index in []rune(text) of the i-th folded rune.
func fold(text string) (folded []rune, positions []int) {
	for i, r := range []rune(text) {
		if letter, ok := lookalikes[r]; ok {
			r = letter
		}
		if unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r) {
			continue
		}
		folded = append(folded, unicode.ToLower(r))
		positions = append(positions, i)
	}
	return folded, positions
}

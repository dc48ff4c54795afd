// Package tokenizer cleans chat text and splits it into chain tokens.
package tokenizer

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/rcliao/parrot/internal/model"
)

// Clean removes control characters, collapses whitespace runs to a single
// space and trims both ends.
func Clean(raw string) string {
	stripped := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, raw)
	return strings.Join(strings.Fields(stripped), " ")
}

// Normalizer maps mentions of the bot's nickname to model.Placeholder and back.
type Normalizer struct {
	nickname string
	pattern  *regexp.Regexp
}

// NewNormalizer builds a Normalizer for a case-insensitive nickname.
// An empty nickname disables mention handling.
func NewNormalizer(nickname string) *Normalizer {
	n := &Normalizer{nickname: nickname}
	if nickname != "" {
		n.pattern = regexp.MustCompile(`(?i)` + regexp.QuoteMeta(nickname))
	}
	return n
}

// Nickname returns the configured nickname.
func (n *Normalizer) Nickname() string {
	return n.nickname
}

// Mentions reports whether text addresses the bot.
func (n *Normalizer) Mentions(text string) bool {
	return n.pattern != nil && n.pattern.MatchString(text)
}

// Mention replaces every occurrence of the nickname with the placeholder.
func (n *Normalizer) Mention(text string) string {
	if n.pattern == nil {
		return text
	}
	return n.pattern.ReplaceAllLiteralString(text, model.Placeholder)
}

// Address substitutes user for the placeholder in generated text. An empty
// user restores the bot's own nickname.
func (n *Normalizer) Address(text, user string) string {
	if user == "" {
		user = n.nickname
	}
	return strings.ReplaceAll(text, model.Placeholder, user)
}

// Tokens cleans raw, normalizes mentions and splits the result into words.
func (n *Normalizer) Tokens(raw string) []model.Token {
	fields := strings.Fields(n.Mention(Clean(raw)))
	tokens := make([]model.Token, len(fields))
	for i, f := range fields {
		tokens[i] = model.W(f)
	}
	return tokens
}

// Package model defines the chain's token, context and record types.
package model

import (
	"fmt"
	"strings"
)

// Kind tags a token as a real word or one of the chain sentinels.
type Kind uint8

const (
	Word Kind = iota
	Start
	End
)

// Sentinels and the nickname placeholder are encoded as control characters.
// Cleaned chat text never contains control characters, so user input cannot
// forge any of them.
const (
	startMark = "\x02"
	endMark   = "\x03"

	// Placeholder stands in for the bot's own nickname inside learned words.
	Placeholder = "\x01"
)

// Token is one element of a context window or a transition target.
type Token struct {
	Kind Kind
	Text string
}

var (
	StartToken = Token{Kind: Start}
	EndToken   = Token{Kind: End}
)

// W returns a word token.
func W(text string) Token {
	return Token{Kind: Word, Text: text}
}

// Encode returns the storage form of the token.
func (t Token) Encode() string {
	switch t.Kind {
	case Start:
		return startMark
	case End:
		return endMark
	default:
		return t.Text
	}
}

// DecodeToken is the inverse of Token.Encode.
func DecodeToken(s string) Token {
	switch s {
	case startMark:
		return StartToken
	case endMark:
		return EndToken
	default:
		return W(s)
	}
}

// String renders the token for humans.
func (t Token) String() string {
	switch t.Kind {
	case Start:
		return "<start>"
	case End:
		return "<end>"
	default:
		return strings.ReplaceAll(t.Text, Placeholder, "<nick>")
	}
}

func (t Token) MarshalText() ([]byte, error) {
	return []byte(t.Encode()), nil
}

func (t *Token) UnmarshalText(b []byte) error {
	*t = DecodeToken(string(b))
	return nil
}

// Context is a rolling window of tokens used as a lookup key.
type Context []Token

// Key joins the encoded tokens with single spaces.
func (c Context) Key() string {
	parts := make([]string, len(c))
	for i, t := range c {
		parts[i] = t.Encode()
	}
	return strings.Join(parts, " ")
}

// ParseContext decodes a key produced by Context.Key.
func ParseContext(key string) Context {
	if key == "" {
		return nil
	}
	parts := strings.Split(key, " ")
	c := make(Context, len(parts))
	for i, p := range parts {
		c[i] = DecodeToken(p)
	}
	return c
}

// IsStart reports whether the context opens a learned sequence.
func (c Context) IsStart() bool {
	return len(c) > 0 && c[0].Kind == Start
}

// Words returns the texts of the real word tokens, sentinels dropped.
func (c Context) Words() []string {
	words := make([]string, 0, len(c))
	for _, t := range c {
		if t.Kind == Word {
			words = append(words, t.Text)
		}
	}
	return words
}

// Slide drops the oldest token and appends t, returning a new window.
func (c Context) Slide(t Token) Context {
	next := make(Context, 0, len(c))
	if len(c) > 0 {
		next = append(next, c[1:]...)
	}
	return append(next, t)
}

func (c Context) String() string {
	parts := make([]string, len(c))
	for i, t := range c {
		parts[i] = t.String()
	}
	return strings.Join(parts, " ")
}

// Next is one observed transition target and how often it was seen.
type Next struct {
	Token Token `json:"token"`
	Count int   `json:"count"`
}

// Entry is the durable transition record of one context.
// Nexts keeps first-observed order.
type Entry struct {
	Words string `json:"words"`
	Total int    `json:"total"`
	Nexts []Next `json:"nexts"`
}

// NewEntry returns the empty record for a context key.
func NewEntry(words string) Entry {
	return Entry{Words: words, Nexts: []Next{}}
}

// Observe records one transition to t.
func (e *Entry) Observe(t Token) {
	e.Total++
	for i := range e.Nexts {
		if e.Nexts[i].Token == t {
			e.Nexts[i].Count++
			return
		}
	}
	e.Nexts = append(e.Nexts, Next{Token: t, Count: 1})
}

// Count returns how often t followed this context.
func (e Entry) Count(t Token) int {
	for _, n := range e.Nexts {
		if n.Token == t {
			return n.Count
		}
	}
	return 0
}

// Clone returns a deep copy.
func (e Entry) Clone() Entry {
	out := e
	out.Nexts = make([]Next, len(e.Nexts))
	copy(out.Nexts, e.Nexts)
	return out
}

// Validate checks the record invariants: counts are positive and sum to Total.
func (e Entry) Validate() error {
	sum := 0
	for _, n := range e.Nexts {
		if n.Count < 1 {
			return fmt.Errorf("next %q has count %d", n.Token, n.Count)
		}
		sum += n.Count
	}
	if sum != e.Total {
		return fmt.Errorf("total %d does not match counts %d", e.Total, sum)
	}
	return nil
}

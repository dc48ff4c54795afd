// Package chatlog writes and replays the raw per-channel message logs.
//
// Each channel gets one file per day, <channel>-YYYY-MM-DD.log, holding lines
// of the form "(HH:MM:SS) sender : message".
package chatlog

import (
	"strings"
	"time"

	"github.com/rcliao/parrot/internal/tokenizer"
)

const (
	clockLayout = "15:04:05"
	dayLayout   = "2006-01-02"
	separator   = " : "
	extension   = ".log"
)

// FileName returns the log file name of channel for the day of at.
func FileName(channel string, at time.Time) string {
	return channel + "-" + at.Format(dayLayout) + extension
}

// FormatLine renders one log line without the trailing newline.
func FormatLine(sender, text string, at time.Time) string {
	return "(" + at.Format(clockLayout) + ") " + sender + separator + text
}

// ParseLine extracts sender and cleaned message text from a log line.
func ParseLine(line string) (sender, text string, ok bool) {
	if len(line) < 11 || line[0] != '(' || line[9] != ')' {
		return "", "", false
	}
	rest := line[11:]
	i := strings.Index(rest, separator)
	if i < 0 {
		return "", "", false
	}
	sender = strings.TrimSpace(rest[:i])
	if sender == "" {
		return "", "", false
	}
	return sender, tokenizer.Clean(rest[i+len(separator):]), true
}

package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Stdio is a line-oriented transport for local use and piping. Input lines
// look like "channel <sender> text"; replies are written as
// "channel <nickname> text".
type Stdio struct {
	nickname string
	logger   *zap.Logger
	events   chan Event
	done     chan struct{}
	once     sync.Once

	mu sync.Mutex
	w  io.Writer
}

// NewStdio starts reading r in the background. The Events channel closes at
// EOF or after Close.
func NewStdio(r io.Reader, w io.Writer, nickname string, logger *zap.Logger) *Stdio {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Stdio{
		nickname: nickname,
		logger:   logger.Named("stdio"),
		events:   make(chan Event),
		done:     make(chan struct{}),
		w:        w,
	}
	go s.read(r)
	return s
}

func (s *Stdio) read(r io.Reader) {
	defer close(s.events)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		ev, ok := ParseInput(sc.Text())
		if !ok {
			s.logger.Debug("ignoring malformed line", zap.String("line", sc.Text()))
			continue
		}
		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
	if err := sc.Err(); err != nil {
		s.logger.Warn("read input", zap.Error(err))
	}
}

// ParseInput parses one "channel <sender> text" line.
func ParseInput(line string) (Event, bool) {
	channel, rest, ok := strings.Cut(strings.TrimSpace(line), " ")
	if !ok || channel == "" {
		return Event{}, false
	}
	rest = strings.TrimLeft(rest, " ")
	if !strings.HasPrefix(rest, "<") {
		return Event{}, false
	}
	sender, text, ok := strings.Cut(rest[1:], ">")
	if !ok || sender == "" {
		return Event{}, false
	}
	at := time.Now()
	return Event{
		ID:      NewID(at),
		Channel: channel,
		Sender:  sender,
		Text:    strings.TrimSpace(text),
		At:      at,
	}, true
}

func (s *Stdio) Events() <-chan Event { return s.events }

func (s *Stdio) Send(ctx context.Context, channel, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, "%s <%s> %s\n", channel, s.nickname, text); err != nil {
		return fmt.Errorf("write reply: %w", err)
	}
	return nil
}

// Close stops event delivery. A reader blocked in Read is not interrupted.
func (s *Stdio) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

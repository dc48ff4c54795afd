package chatlog

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Dir replays the logs stored in one directory.
type Dir struct {
	path      string
	blacklist map[string]bool
}

// NewDir returns a replay source for path. Messages from blacklisted senders
// are skipped.
func NewDir(path string, blacklist []string) *Dir {
	d := &Dir{path: path, blacklist: make(map[string]bool, len(blacklist))}
	for _, name := range blacklist {
		d.blacklist[name] = true
	}
	return d
}

// Files lists channel's <channel>-YYYY-MM-DD.log files in date order.
func (d *Dir) Files(channel string) ([]string, error) {
	entries, err := os.ReadDir(d.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	prefix := channel + "-"
	var files []string
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, extension) {
			continue
		}
		// The rest must be exactly a date, so "room" never reads "room-b-…".
		day := strings.TrimSuffix(strings.TrimPrefix(name, prefix), extension)
		if _, err := time.Parse(dayLayout, day); err != nil {
			continue
		}
		files = append(files, filepath.Join(d.path, name))
	}
	sort.Strings(files)
	return files, nil
}

// Replay calls fn with every non-empty message of channel, oldest first.
func (d *Dir) Replay(ctx context.Context, channel string, fn func(text string) error) error {
	files, err := d.Files(channel)
	if err != nil {
		return fmt.Errorf("list logs: %w", err)
	}
	for _, path := range files {
		if err := d.replayFile(ctx, path, fn); err != nil {
			return fmt.Errorf("replay %s: %w", filepath.Base(path), err)
		}
	}
	return nil
}

func (d *Dir) replayFile(ctx context.Context, path string, fn func(text string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		sender, text, ok := ParseLine(sc.Text())
		if !ok || text == "" || d.blacklist[sender] {
			continue
		}
		if err := fn(text); err != nil {
			return err
		}
	}
	return sc.Err()
}

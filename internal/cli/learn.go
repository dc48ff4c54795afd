package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/parrot/internal/transport"
)

type learnResult struct {
	OK           bool   `json:"ok"`
	Channel      string `json:"channel"`
	Learned      int    `json:"learned"`
	Observations int    `json:"observations"`
}

func init() {
	cmd := &cobra.Command{
		Use:   "learn [message]",
		Short: "Teach a channel one or more messages",
		Long: `Teach a channel a message. The message can be a positional arg; otherwise
every line piped via stdin is learned. Messages are written to the chat log
so a later reset keeps them.`,
		Run: runLearn,
	}

	cmd.Flags().StringP("channel", "c", "", "Channel (required)")
	cmd.Flags().String("as", "console", "Sender name recorded in the chat log")

	cmd.MarkFlagRequired("channel")

	RootCmd.AddCommand(cmd)
}

func runLearn(cmd *cobra.Command, args []string) {
	channel, _ := cmd.Flags().GetString("channel")
	sender, _ := cmd.Flags().GetString("as")

	var lines []string
	if len(args) > 0 {
		lines = []string{strings.Join(args, " ")}
	} else {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			sc := bufio.NewScanner(os.Stdin)
			sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			for sc.Scan() {
				lines = append(lines, sc.Text())
			}
			if err := sc.Err(); err != nil {
				exitErr("read stdin", err)
			}
		}
	}
	if len(lines) == 0 {
		exitErr("learn", fmt.Errorf("message is required (positional arg or stdin)"))
	}

	cfg := loadConfig()
	s := mustOpenSession(cfg, true)
	defer s.Close()
	ch := s.channel(channel)

	learned, observations := 0, 0
	for _, line := range lines {
		ev := transport.Event{Channel: channel, Sender: sender, Text: line, At: time.Now()}
		ev.ID = transport.NewID(ev.At)
		if n := s.bot.Learn(ev); n > 0 {
			learned++
			observations += n
		}
	}

	writeJSON(cmd.OutOrStdout(), learnResult{OK: true, Channel: ch.ID(), Learned: learned, Observations: observations})
}

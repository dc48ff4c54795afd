package cli

import (
	"encoding/json"
	"fmt"

	"github.com/rcliao/parrot/internal/chain"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Wipe a channel and relearn it from the chat logs",
		Long:  "Wipe the stored chain of one channel (or all with no -c) and relearn it by replaying the chat logs.",
		Run:   runReset,
	}

	cmd.Flags().StringP("channel", "c", "", "Channel (default: every configured channel)")

	RootCmd.AddCommand(cmd)
}

func runReset(cmd *cobra.Command, args []string) {
	channel, _ := cmd.Flags().GetString("channel")

	cfg := loadConfig()
	s := mustOpenSession(cfg, false)
	defer s.Close()

	if channel != "" {
		ch := s.channel(channel)
		if err := ch.Reset(cmd.Context(), s.bot.History()); err != nil {
			exitErr("reset", err)
		}
	} else if err := s.bot.ResetAll(cmd.Context()); err != nil {
		exitErr("reset", err)
	}

	printChannelStats(s, channel)
}

// printChannelStats prints the start index stats of one channel, or of every
// channel when id is empty.
func printChannelStats(s *session, id string) {
	var out []chain.Stats
	if id != "" {
		out = append(out, s.channel(id).Stats())
	} else {
		for _, id := range s.bot.Channels() {
			out = append(out, s.channel(id).Stats())
		}
	}
	b, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(b))
}

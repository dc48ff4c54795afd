package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild start indexes from stored records",
		Long:  "Rebuild the start index of one channel (or all with no -c) from the store without modifying it, and print the result.",
		Run:   runReindex,
	}

	cmd.Flags().StringP("channel", "c", "", "Channel (default: every configured channel)")

	RootCmd.AddCommand(cmd)
}

func runReindex(cmd *cobra.Command, args []string) {
	channel, _ := cmd.Flags().GetString("channel")

	cfg := loadConfig()
	s := mustOpenSession(cfg, false)
	defer s.Close()

	if channel != "" {
		if err := s.channel(channel).Reindex(cmd.Context()); err != nil {
			exitErr("reindex", err)
		}
	} else if err := s.bot.ReindexAll(cmd.Context()); err != nil {
		exitErr("reindex", err)
	}

	printChannelStats(s, channel)
}

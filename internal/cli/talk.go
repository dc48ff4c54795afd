package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "talk",
		Short: "Generate lines from a channel's chain",
		Run:   runTalk,
	}

	cmd.Flags().StringP("channel", "c", "", "Channel (required)")
	cmd.Flags().String("as", "", "Address the reply to this user (default: the bot's own nickname)")
	cmd.Flags().IntP("count", "n", 1, "Number of lines")

	cmd.MarkFlagRequired("channel")

	RootCmd.AddCommand(cmd)
}

func runTalk(cmd *cobra.Command, args []string) {
	channel, _ := cmd.Flags().GetString("channel")
	user, _ := cmd.Flags().GetString("as")
	count, _ := cmd.Flags().GetInt("count")

	cfg := loadConfig()
	s := mustOpenSession(cfg, false)
	defer s.Close()
	ch := s.channel(channel)

	if err := ch.Reindex(cmd.Context()); err != nil {
		exitErr("reindex", err)
	}

	for i := 0; i < count; i++ {
		ctx, cancel := cmd.Context(), context.CancelFunc(func() {})
		if cfg.TalkTimeout > 0 {
			ctx, cancel = context.WithTimeout(cmd.Context(), cfg.TalkTimeout)
		}
		line, err := ch.Talk(ctx)
		cancel()
		if err != nil && cmd.Context().Err() != nil {
			exitErr("talk", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), s.bot.Normalizer().Address(line, user))
	}
}

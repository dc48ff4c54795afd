package cli

import (
	"encoding/json"
	"fmt"

	"github.com/rcliao/parrot/internal/chain"
	"github.com/rcliao/parrot/internal/store"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show store and start index statistics",
		Run:   runStats,
	}

	RootCmd.AddCommand(cmd)
}

func runStats(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	s := mustOpenSession(cfg, false)
	defer s.Close()

	if err := s.bot.ReindexAll(cmd.Context()); err != nil {
		exitErr("reindex", err)
	}
	st, err := s.store.Stats(cmd.Context())
	if err != nil {
		exitErr("stats", err)
	}

	out := struct {
		Store    *store.Stats  `json:"store"`
		Channels []chain.Stats `json:"channels"`
	}{Store: st, Channels: []chain.Stats{}}
	for _, id := range s.bot.Channels() {
		out.Channels = append(out.Channels, s.channel(id).Stats())
	}
	b, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(b))
}

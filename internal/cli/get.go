package cli

import (
	"encoding/json"
	"fmt"

	"github.com/rcliao/parrot/internal/model"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Show the transitions recorded for a context",
		Long: `Show the record of one context window. The words given with -k must fill
the window exactly; --start marks the window as the opening of a message.`,
		Run: runGet,
	}

	cmd.Flags().StringP("channel", "c", "", "Channel (required)")
	cmd.Flags().StringP("key", "k", "", "Context words (required)")
	cmd.Flags().Bool("start", false, "Context opens a message")

	cmd.MarkFlagRequired("channel")
	cmd.MarkFlagRequired("key")

	RootCmd.AddCommand(cmd)
}

type nextView struct {
	Token string `json:"token"`
	Count int    `json:"count"`
}

type entryView struct {
	Context string     `json:"context"`
	Total   int        `json:"total"`
	Nexts   []nextView `json:"nexts"`
}

func runGet(cmd *cobra.Command, args []string) {
	channel, _ := cmd.Flags().GetString("channel")
	key, _ := cmd.Flags().GetString("key")
	start, _ := cmd.Flags().GetBool("start")

	cfg := loadConfig()
	s := mustOpenSession(cfg, false)
	defer s.Close()
	ch := s.channel(channel)

	var history model.Context
	if start {
		history = append(history, model.StartToken)
	}
	history = append(history, s.bot.Normalizer().Tokens(key)...)
	if len(history) != cfg.Power {
		exitErr("get", fmt.Errorf("context has %d tokens, power is %d", len(history), cfg.Power))
	}

	e, err := ch.Entry(cmd.Context(), history)
	if err != nil {
		exitErr("get", err)
	}

	view := entryView{Context: history.String(), Total: e.Total, Nexts: make([]nextView, len(e.Nexts))}
	for i, n := range e.Nexts {
		view.Nexts[i] = nextView{Token: n.Token.String(), Count: n.Count}
	}
	b, _ := json.MarshalIndent(view, "", "  ")
	fmt.Println(string(b))
}

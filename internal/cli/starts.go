package cli

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/rcliao/parrot/internal/model"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "starts",
		Short: "List the start contexts of a channel",
		Run:   runStarts,
	}

	cmd.Flags().StringP("channel", "c", "", "Channel (required)")
	cmd.Flags().IntP("limit", "l", 20, "Max results (0 for all)")

	cmd.MarkFlagRequired("channel")

	RootCmd.AddCommand(cmd)
}

type startView struct {
	Context string `json:"context"`
	Count   int    `json:"count"`
}

func runStarts(cmd *cobra.Command, args []string) {
	channel, _ := cmd.Flags().GetString("channel")
	limit, _ := cmd.Flags().GetInt("limit")

	cfg := loadConfig()
	s := mustOpenSession(cfg, false)
	defer s.Close()
	ch := s.channel(channel)

	if err := ch.Reindex(cmd.Context()); err != nil {
		exitErr("reindex", err)
	}

	weights := ch.Index().Weights()
	sort.SliceStable(weights, func(i, j int) bool { return weights[i].Count > weights[j].Count })
	if limit > 0 && len(weights) > limit {
		weights = weights[:limit]
	}

	out := make([]startView, len(weights))
	for i, w := range weights {
		out[i] = startView{Context: model.ParseContext(w.Words).String(), Count: w.Count}
	}
	b, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(b))
}

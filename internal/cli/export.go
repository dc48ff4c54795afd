package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a channel's records as JSON",
		Run:   runExport,
	}

	cmd.Flags().StringP("channel", "c", "", "Channel (required)")

	cmd.MarkFlagRequired("channel")

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	channel, _ := cmd.Flags().GetString("channel")

	cfg := loadConfig()
	s := mustOpenSession(cfg, false)
	defer s.Close()
	ch := s.channel(channel)

	entries, err := s.store.Export(cmd.Context(), ch.ID())
	if err != nil {
		exitErr("export", err)
	}

	b, _ := json.MarshalIndent(entries, "", "  ")
	fmt.Println(string(b))
}

package cli

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rcliao/parrot/internal/model"
	"github.com/spf13/cobra"
)

type importResult struct {
	OK       bool   `json:"ok"`
	Channel  string `json:"channel"`
	Imported int    `json:"imported"`
	Skipped  int    `json:"skipped"`
	Starts   int    `json:"starts"`
}

func init() {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a channel's records from JSON",
		Long:  "Import records from stdin into a channel. Expects the format produced by export; records with inconsistent totals are skipped.",
		Run:   runImport,
	}

	cmd.Flags().StringP("channel", "c", "", "Channel (required)")

	cmd.MarkFlagRequired("channel")

	RootCmd.AddCommand(cmd)
}

func runImport(cmd *cobra.Command, args []string) {
	channel, _ := cmd.Flags().GetString("channel")

	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		exitErr("read stdin", err)
	}

	var entries []model.Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		exitErr("parse json", err)
	}

	cfg := loadConfig()
	s := mustOpenSession(cfg, false)
	defer s.Close()
	ch := s.channel(channel)

	imported, err := s.store.Import(cmd.Context(), ch.ID(), entries)
	if err != nil {
		exitErr("import", err)
	}
	if err := ch.Reindex(cmd.Context()); err != nil {
		exitErr("reindex", err)
	}

	writeJSON(cmd.OutOrStdout(), importResult{
		OK:       true,
		Channel:  ch.ID(),
		Imported: imported,
		Skipped:  len(entries) - imported,
		Starts:   ch.Index().Len(),
	})
}

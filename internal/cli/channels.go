package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "channels",
		Short: "List configured channels and their stored record counts",
		Run:   runChannels,
	}

	RootCmd.AddCommand(cmd)
}

type channelView struct {
	Channel string `json:"channel"`
	Records int    `json:"records"`
	Logs    int    `json:"log_files"`
}

func runChannels(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	s := mustOpenSession(cfg, false)
	defer s.Close()

	st, err := s.store.Stats(cmd.Context())
	if err != nil {
		exitErr("stats", err)
	}
	records := make(map[string]int, len(st.Namespaces))
	for _, ns := range st.Namespaces {
		records[ns.NS] = ns.Records
	}

	out := []channelView{}
	for _, id := range s.bot.Channels() {
		files, err := s.bot.History().Files(id)
		if err != nil {
			exitErr("list logs", err)
		}
		out = append(out, channelView{Channel: id, Records: records[id], Logs: len(files)})
	}
	b, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(b))
}

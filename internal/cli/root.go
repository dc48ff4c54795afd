// Package cli implements the parrot CLI commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rcliao/parrot/internal/bot"
	"github.com/rcliao/parrot/internal/chain"
	"github.com/rcliao/parrot/internal/chatlog"
	"github.com/rcliao/parrot/internal/config"
	"github.com/rcliao/parrot/internal/logging"
	"github.com/rcliao/parrot/internal/metrics"
	"github.com/rcliao/parrot/internal/store"
)

var (
	cfgPath string
	verbose bool
	logger  = zap.NewNop()
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "parrot",
	Short: "A Markov-chain chat bot",
	Long: `parrot learns from every message in the channels it sits in and, when
someone mentions it, answers with a line generated from what it has learned.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := logging.New(verbose)
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	RootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Config file (default: ./parrot.yaml or ~/.parrot/parrot.yaml)")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
}

func loadConfig() *config.Config {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		exitErr("load config", err)
	}
	return cfg
}

func openBackend(cfg *config.Config) (store.Backend, error) {
	if cfg.Backend == config.BackendSQLite {
		return store.NewSQLiteBackend(filepath.Join(cfg.Data, "parrot.db"))
	}
	return store.NewFileBackend(cfg.Data)
}

// session is an opened store with the bot built over it.
type session struct {
	cfg   *config.Config
	store *store.Store
	bot   *bot.Bot
}

// openSession opens the configured backend. withLogs also opens the chat
// log writer so handled messages are recorded.
func openSession(cfg *config.Config, m *metrics.Metrics, withLogs bool) (*session, error) {
	backend, err := openBackend(cfg)
	if err != nil {
		return nil, fmt.Errorf("open backend: %w", err)
	}
	st := store.New(backend, store.Options{Logger: logger, Metrics: m})

	opts := bot.Options{Logger: logger, Metrics: m}
	if withLogs {
		w, err := chatlog.NewWriter(cfg.Logs, chatlog.DefaultOpenFiles)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("open chat logs: %w", err)
		}
		opts.Logs = w
	}
	return &session{cfg: cfg, store: st, bot: bot.New(cfg, st, opts)}, nil
}

func mustOpenSession(cfg *config.Config, withLogs bool) *session {
	s, err := openSession(cfg, nil, withLogs)
	if err != nil {
		exitErr("open", err)
	}
	return s
}

func (s *session) Close() {
	if err := s.bot.Close(); err != nil {
		logger.Warn("close bot", zap.Error(err))
	}
	if err := s.store.Close(); err != nil {
		logger.Warn("close store", zap.Error(err))
	}
}

// channel resolves a configured channel or exits.
func (s *session) channel(id string) *chain.Channel {
	ch, ok := s.bot.Channel(id)
	if !ok {
		exitErr("channel", fmt.Errorf("%q is not a configured channel", id))
	}
	return ch
}

// writeJSON prints v as one line of JSON.
func writeJSON(w io.Writer, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		exitErr("encode output", err)
	}
	fmt.Fprintln(w, string(b))
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	_ = logger.Sync()
	os.Exit(1)
}

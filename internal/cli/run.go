package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rcliao/parrot/internal/metrics"
	"github.com/rcliao/parrot/internal/transport"
)

func init() {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the bot",
		Long: `Run the bot on the stdio transport. Each input line is "channel <sender> text";
replies are printed as "channel <nickname> text".`,
		Run: runRun,
	}

	cmd.Flags().Bool("reset", false, "Relearn every channel from the chat logs before starting")
	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address (overrides metrics_addr)")

	RootCmd.AddCommand(cmd)
}

func runRun(cmd *cobra.Command, args []string) {
	reset, _ := cmd.Flags().GetBool("reset")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	cfg := loadConfig()
	if metricsAddr == "" {
		metricsAddr = cfg.MetricsAddr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.MustNew(reg)
		srv := serveMetrics(metricsAddr, reg)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	s, err := openSession(cfg, m, true)
	if err != nil {
		exitErr("open", err)
	}
	defer s.Close()

	if reset {
		err = s.bot.ResetAll(ctx)
	} else {
		err = s.bot.ReindexAll(ctx)
	}
	if err != nil {
		exitErr("load channels", err)
	}

	t := transport.NewStdio(os.Stdin, os.Stdout, cfg.Nickname, logger)
	defer t.Close()

	logger.Info("parrot is listening",
		zap.String("nickname", cfg.Nickname),
		zap.Strings("channels", s.bot.Channels()),
		zap.String("backend", cfg.Backend))

	if err := s.bot.Serve(ctx, t); err != nil && !errors.Is(err, context.Canceled) {
		exitErr("serve", err)
	}
	logger.Info("parrot stopped")
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", zap.String("addr", addr), zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", addr))
	return srv
}

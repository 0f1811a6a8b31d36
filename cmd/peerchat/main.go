package main

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/peerchat/peerchat/internal/cli"
	"github.com/peerchat/peerchat/internal/peer"
)

var (
	metricsAddr string
	readTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:          "peerchat <port>",
	Short:        "Peer-to-peer TCP text chat",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, err := strconv.Atoi(args[0])
		if err != nil || port < 1024 || port > 65535 {
			return errors.New("port must be a number between 1024 and 65535")
		}

		logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))

		p := peer.New(port, readTimeout, logger)
		if err := p.Start(); err != nil {
			return err
		}

		if metricsAddr != "" {
			go func() {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.Handler())
				if err := http.ListenAndServe(metricsAddr, mux); err != nil {
					logger.Error("metrics server failed", "error", err)
				}
			}()
		}

		// SIGINT and the exit command funnel into the same idempotent
		// shutdown path.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigCh
			p.Shutdown()
			os.Exit(0)
		}()

		loop := cli.New(p, os.Stdin, os.Stdout)
		loop.Notify(p.Notes())
		loop.Run()
		return nil
	},
}

func main() {
	rootCmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "Prometheus metrics listen address (empty disables the endpoint)")
	rootCmd.Flags().DurationVar(&readTimeout, "read-timeout", peer.DefaultTimeout, "socket accept/read/write timeout")
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

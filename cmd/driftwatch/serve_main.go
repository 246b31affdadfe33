package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/driftwatch/driftwatch/internal/config"
	"github.com/driftwatch/driftwatch/internal/connect"
	"github.com/driftwatch/driftwatch/internal/engine"
	httpapi "github.com/driftwatch/driftwatch/internal/interfaces/http"
	"github.com/driftwatch/driftwatch/internal/live"
	"github.com/driftwatch/driftwatch/internal/metrics"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the live stream engine",
		Long:  "Serves /api/connect, /api/tables, /api/analyze, the websocket live feed, /health and /metrics.",
		RunE:  runServe,
	}
	cmd.Flags().String("host", "", "Listen host (overrides config)")
	cmd.Flags().Int("port", 0, "Listen port (overrides config)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	setLogLevel(cfg.LogLevel)

	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Server.Host = host
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		cfg.Server.Port = port
	}

	met := metrics.Default()
	store := connect.NewStore(cfg.Connect.RedisAddr, cfg.Connect.TokenTTL)
	connector := connect.NewConnector(store, cfg.Connect, met)
	defer connector.Close()

	eng := engine.New(cfg.Engine)

	stream := live.NewEngine(cfg.Stream, live.NewGenerator(cfg.Generator), met)
	if err := stream.Start(); err != nil {
		return err
	}
	defer stream.Stop()

	server := httpapi.NewServer(cfg.Server, eng, connector, stream, met)

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

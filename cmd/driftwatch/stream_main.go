package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/driftwatch/driftwatch/internal/config"
	"github.com/driftwatch/driftwatch/internal/live"
	"github.com/driftwatch/driftwatch/internal/metrics"
)

func newStreamCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Run the live stream engine and print events to the terminal",
		RunE:  runStream,
	}
	cmd.Flags().Duration("interval", 0, "Tick interval (overrides config)")
	cmd.Flags().Int("capacity", 0, "Rolling window capacity (overrides config)")
	return cmd
}

func runStream(cmd *cobra.Command, _ []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	setLogLevel(cfg.LogLevel)

	if interval, _ := cmd.Flags().GetDuration("interval"); interval > 0 {
		cfg.Stream.Interval = interval
	}
	if capacity, _ := cmd.Flags().GetInt("capacity"); capacity > 0 {
		cfg.Stream.WindowCapacity = capacity
	}

	stream := live.NewEngine(cfg.Stream, live.NewGenerator(cfg.Generator), metrics.Default())
	if err := stream.Start(); err != nil {
		return err
	}
	defer stream.Stop()

	events, cancel := stream.Subscribe()
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-sigCh:
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			mark := " "
			severity := ""
			if ev.IsAnomaly {
				mark = "!"
				if ev.Severity != nil {
					severity = " " + *ev.Severity
				}
			}
			ts, _ := time.Parse(time.RFC3339, ev.Timestamp)
			fmt.Printf("%s %s %10.4f%s\n", mark, ts.Format("15:04:05"), ev.Value, severity)
		}
	}
}

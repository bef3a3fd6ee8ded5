// watch subscribes to a pulser and prints its events to the console.
// Usage: go run ./cmd/watch --url ws://localhost:8080/ws [--cmd start]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rickgao/stockpulse/internal/broadcast"
	"github.com/rickgao/stockpulse/internal/connection"
)

func main() {
	url := flag.String("url", "ws://localhost:8080/ws", "pulser WebSocket URL")
	cmd := flag.String("cmd", "", "command to send after connecting (start, stop, reset, ...)")
	verbose := flag.Bool("verbose", false, "print raw event JSON")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := connection.DefaultClientConfig()
	cfg.URL = *url

	client := connection.NewClient(cfg, logger)
	if err := client.Connect(ctx); err != nil {
		logger.Error("failed to connect", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	logger.Info("connected", "url", *url)

	if *cmd != "" {
		cmdCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		resp, err := client.Do(cmdCtx, *cmd)
		cancel()
		if err != nil {
			logger.Error("command failed", "cmd", *cmd, "error", err)
			os.Exit(1)
		}
		logger.Info("command ok", "cmd", *cmd, "result", string(resp.Msg))
	}

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-client.Errors():
			logger.Error("connection lost", "error", err)
			os.Exit(1)
		case e := <-client.Events():
			printEvent(e, *verbose, logger)
		}
	}
}

func printEvent(e connection.Event, verbose bool, logger *slog.Logger) {
	ts := e.ReceivedAt.Format("15:04:05.000")

	if verbose {
		fmt.Printf("%s %-16s %s\n", ts, e.Event, e.Data)
		return
	}

	switch e.Event {
	case broadcast.EventSnapshot:
		views, err := e.Snapshot()
		if err != nil {
			logger.Warn("bad snapshot", "error", err)
			return
		}
		fmt.Printf("%s SNAPSHOT %d instruments\n", ts, len(views))
		for _, v := range views {
			fmt.Printf("           %-6s %10s  open=%s high=%s low=%s\n", v.Symbol, v.Price, v.DayOpen, v.DayHigh, v.DayLow)
		}

	case broadcast.EventUpdateStockPrice:
		v, err := e.Instrument()
		if err != nil {
			logger.Warn("bad update", "error", err)
			return
		}
		// percent_change is a fraction of the day open.
		fmt.Printf("%s TICK  %-6s %10s  last=%7s  change=%7s  frac=%s\n",
			ts, v.Symbol, v.Price, v.LastChange, v.Change, v.PercentChange)

	default:
		fmt.Printf("%s %s %s\n", ts, e.Event, e.Data)
	}
}

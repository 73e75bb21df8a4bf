package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/eringen/pubindex/watcher"
)

var syncCmd = &cobra.Command{
	Use:   "sync <blog> <dir>",
	Short: "Index every file of a folder into a blog",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		blog, dir := args[0], args[1]
		eng, err := openEngine(map[string]string{blog: dir})
		if err != nil {
			return err
		}
		defer eng.Close()

		n, err := watcher.New(eng.Engine, blog, dir, logger()).Sync(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to sync %s: %w", dir, err)
		}
		fmt.Printf("Synced %d files into %s.\n", n, blog)
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch <blog> <dir>",
	Short: "Index a folder and keep following its changes",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		blog, dir := args[0], args[1]
		eng, err := openEngine(map[string]string{blog: dir})
		if err != nil {
			return err
		}
		defer eng.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		stopMaintenance := eng.StartMaintenance(time.Minute)
		defer stopMaintenance()

		fmt.Fprintf(os.Stderr, "Watching %s for %s (Ctrl+C to quit)\n", dir, blog)
		return watcher.New(eng.Engine, blog, dir, logger()).Watch(ctx)
	},
}

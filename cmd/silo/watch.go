package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	silolifecycle "github.com/aretw0/silo/pkg/adapters/lifecycle"
	"github.com/aretw0/silo/pkg/core"
)

var watchCmd = &cobra.Command{
	Use:   "watch [pattern]",
	Short: "Print external changes to the collection",
	Long: `Watch reports documents created, modified or deleted outside silo, e.g. by an
editor working on a dir:// store. The optional pattern is a doublestar glob
matched against document identities (default "**").

Stop with Ctrl+C.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		pattern := ""
		if len(args) == 1 {
			pattern = args[0]
		}

		repo, err := openRepository()
		if err != nil {
			fatal("Error opening repository", err)
		}
		defer repo.Close()

		w, ok := repo.Collection().(core.Watchable)
		if !ok {
			fatal("Error starting watch", fmt.Errorf("store %T does not report external changes", repo.Connection()))
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		changes, err := w.Watch(ctx, pattern)
		if err != nil {
			fatal("Error starting watch", err)
		}

		src := silolifecycle.NewChangeSource(changes)
		if err := src.Start(ctx); err != nil {
			fatal("Error starting watch", err)
		}

		slog.Info("watching", "pattern", pattern)
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-src.Events():
				if !ok {
					return
				}
				fmt.Println(e.String())
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Zuo-Peng/guruchat/internal/store"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Self-check: verify config, local state and backend reachability",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return fmt.Errorf("setup: %w", err)
			}
			defer a.Close()

			fmt.Println("=== Config ===")
			fmt.Printf("  API:      %s\n", a.cfg.APIURL)
			fmt.Printf("  Style:    %s\n", a.cfg.Style)
			fmt.Printf("  Model:    %s\n", a.cfg.Model)
			fmt.Printf("  Timeout:  %s\n", a.cfg.RequestTimeout)
			fmt.Printf("  Log:      %s (%s)\n", a.cfg.LogPath, a.cfg.LogLevel)

			fmt.Println("\n=== Local state ===")
			fmt.Printf("  Path:     %s\n", a.cfg.DBPath)
			fmt.Printf("  User ID:  %s\n", a.userID)
			if n, err := a.db.Count(); err != nil {
				fmt.Printf("  Count error: %v\n", err)
			} else {
				fmt.Printf("  Entries:  %d\n", n)
			}
			if id, ok, err := a.db.Get(store.KeyLastSessionID); err == nil && ok {
				fmt.Printf("  Resume:   %s\n", id)
			}
			if info, err := os.Stat(a.cfg.DBPath); err == nil {
				fmt.Printf("  Size:     %.1f KB\n", float64(info.Size())/1024)
			}

			// probe both read endpoints side by side
			fmt.Println("\n=== Backend ===")
			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.RequestTimeout.Duration)
			defer cancel()

			var gurus, sessions int
			var latency time.Duration
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				start := time.Now()
				chars, err := a.client.Characters(gctx)
				latency = time.Since(start)
				gurus = len(chars)
				return err
			})
			g.Go(func() error {
				list, err := a.client.ListSessions(gctx, a.userID)
				sessions = len(list)
				return err
			})
			if err := g.Wait(); err != nil {
				fmt.Printf("  Status:   UNREACHABLE (%v)\n", err)
				return nil
			}
			fmt.Printf("  Status:   OK (%s)\n", latency.Round(time.Millisecond))
			fmt.Printf("  Gurus:    %d\n", gurus)
			fmt.Printf("  Sessions: %d\n", sessions)
			return nil
		},
	}
}

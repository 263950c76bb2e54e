package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Zuo-Peng/guruchat/internal/config"
	"github.com/Zuo-Peng/guruchat/internal/logging"
	"github.com/Zuo-Peng/guruchat/internal/mockserver"
)

func mockServerCmd() *cobra.Command {
	var addr string
	var delay time.Duration
	var markerIDs bool

	cmd := &cobra.Command{
		Use:   "mock-server",
		Short: "Run an in-memory backend for local development",
		Long: `Serves the GuruChat API from memory with a fixed set of gurus. Point the
client at it with GURU_API_URL=http://localhost:8787/api.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.MockAddr
			}

			log, err := logging.New(cfg.LogPath, cfg.LogLevel)
			if err != nil {
				return err
			}
			defer log.Sync()

			opts := []mockserver.Option{
				mockserver.WithLogger(log.Named("mockserver")),
				mockserver.WithTokenDelay(delay),
			}
			if markerIDs {
				opts = append(opts, mockserver.WithMarkerSpeakerIDs())
			}
			srv := &http.Server{
				Addr:              addr,
				Handler:           mockserver.New(mockserver.Seed(), opts...),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			errc := make(chan error, 1)
			go func() { errc <- srv.ListenAndServe() }()
			fmt.Fprintf(os.Stderr, "mock backend listening on %s\n", addr)
			log.Info("mock backend listening", zap.String("addr", addr))

			select {
			case err := <-errc:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config, :8787)")
	cmd.Flags().DurationVar(&delay, "delay", 40*time.Millisecond, "Pause between streamed tokens")
	cmd.Flags().BoolVar(&markerIDs, "marker-ids", false, "Tag turn-end markers with the speaker id")

	return cmd
}

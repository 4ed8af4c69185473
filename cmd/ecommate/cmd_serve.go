package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ecommate/internal/server"
	"ecommate/internal/session"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API with per-session chat history",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := newLogger(cfg)
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, log, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		// Build or load up front so the first request does not pay for it.
		if err := a.index.Ensure(ctx); err != nil {
			log.Warn("main", "index not ready, retrieval will fall back", map[string]any{"error": err.Error()})
		}

		if err := os.MkdirAll(cfg.Server.TempDir, 0o755); err != nil {
			return err
		}
		sessions := session.NewStore(time.Duration(cfg.Server.SessionTTLMinutes) * time.Minute)
		srv := server.New(a.pipeline, sessions, server.Options{
			TempDir:            cfg.Server.TempDir,
			MaxUploadBytes:     int64(cfg.Server.MaxUploadMB) << 20,
			RejectUnrecognized: cfg.Server.RejectUnrecognized,
			Styles:             cfg.Styles,
		}, log, a.registry)

		addr := cfg.Server.Addr
		if serveAddr != "" {
			addr = serveAddr
		}
		return srv.ListenAndServe(ctx, addr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address, overrides server.addr")
}

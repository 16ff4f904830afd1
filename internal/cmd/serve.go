package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/tilebank/internal/config"
	"github.com/MeKo-Tech/tilebank/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve tiles, TileJSON, styles, fonts, sprites and GeoJSON",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "0.0.0.0:8080", "Listen address (host:port)")
	serveCmd.Flags().String("public_url", "", "Public base URL injected into TileJSON and styles (defaults to request host)")
	serveCmd.Flags().Duration("fetch_timeout", 30*time.Second, "Timeout per upstream tile fetch")
	serveCmd.Flags().Int("max_try", 3, "Retry budget for transient upstream failures")

	mustBind := func(key string, name string) {
		if err := viper.BindPFlag(key, serveCmd.Flags().Lookup(name)); err != nil {
			panic(fmt.Sprintf("failed to bind flag: %v", err))
		}
	}

	mustBind("serve.addr", "addr")
	mustBind("serve.public_url", "public_url")
	mustBind("serve.fetch_timeout", "fetch_timeout")
	mustBind("serve.max_try", "max_try")
}

func runServe(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	dir, err := dataDir()
	if err != nil {
		return err
	}
	layout := config.Layout{DataDir: dir}

	cfg, err := config.LoadConfig(layout.ConfigPath())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	repo, err := config.OpenRepository(ctx, layout, cfg, os.Getenv("POSTGRESQL_BASE_URI"), logger)
	if err != nil {
		return err
	}
	defer repo.Close()

	srv := server.New(repo, server.Config{
		Layout:       layout,
		PublicURL:    viper.GetString("serve.public_url"),
		FallbackFont: os.Getenv("FALLBACK_FONT"),
		FetchTimeout: viper.GetDuration("serve.fetch_timeout"),
		MaxTry:       viper.GetInt("serve.max_try"),
		GeoJSONs:     cfg.GeoJSONs,
	}, logger)

	addr := viper.GetString("serve.addr")
	httpSrv := &http.Server{Addr: addr, Handler: srv.Handler(), ReadHeaderTimeout: 5 * time.Second}

	// SIGINT drains and exits 0; SIGTERM exits 1 so the supervisor
	// restarts the process.
	var restart atomic.Bool
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sig
		if s == syscall.SIGTERM {
			restart.Store(true)
		}
		logger.Info("shutting down", "signal", s.String())
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		_ = httpSrv.Shutdown(shutdownCtx)
		cancel()
	}()

	logger.Info("tile server listening",
		"addr", addr,
		"data_dir", dir,
		"stores", len(repo.IDs()),
		"service", os.Getenv("SERVICE_NAME"),
	)

	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	if restart.Load() {
		repo.Close()
		os.Exit(1)
	}
	return nil
}

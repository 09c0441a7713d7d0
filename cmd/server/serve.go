package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Brownie44l1/trapcam/internal/config"
	"github.com/Brownie44l1/trapcam/internal/gallery"
	"github.com/Brownie44l1/trapcam/internal/handlers"
	"github.com/Brownie44l1/trapcam/internal/inference"
	"github.com/Brownie44l1/trapcam/internal/listing"
	"github.com/Brownie44l1/trapcam/internal/model"
	"github.com/Brownie44l1/trapcam/internal/upstream"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the gallery",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if listenAddr != "" {
			cfg.Listen = listenAddr
		}
		return serve(cmd.Context(), *cfg)
	},
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "listen address, overrides the config")
	rootCmd.AddCommand(serveCmd)
}

// components are the long-lived collaborators shared by serve and classify.
type components struct {
	log      *logrus.Logger
	client   *upstream.Client
	lister   *listing.Lister
	pixels   *gallery.PixelLoader
	registry *model.Registry
	adapter  *inference.Adapter
}

func build(cfg config.Config) *components {
	log := cfg.Logger()
	client := upstream.NewClient(cfg.FetchRate, cfg.FetchBurst)
	return &components{
		log:      log,
		client:   client,
		lister:   listing.New(client, cfg.BaseURL, cfg.ListingFormat, cfg.CacheTTL, log),
		pixels:   gallery.NewPixelLoader(client, cfg.CacheTTL),
		registry: model.NewRegistry(client, model.ONNXOpener(cfg.OnnxRuntimeLib), cfg.ModelFile, cfg.MetadataFile, log),
		adapter:  inference.NewAdapter(log),
	}
}

func (c *components) close() {
	c.registry.Close()
	model.ShutdownONNX()
}

func serve(ctx context.Context, cfg config.Config) error {
	c := build(cfg)
	defer c.close()
	log := c.log

	store := gallery.NewStore(&gallery.Deps{
		Lister:   c.lister,
		Pixels:   c.pixels,
		Models:   c.registry,
		Adapter:  c.adapter,
		BaseURL:  cfg.BaseURL,
		Debounce: cfg.Debounce,
		Log:      log,
	}, cfg.Folder, cfg.SessionTTL)
	defer store.Close()

	if cfg.Development {
		log.Warn("development mode: model loading disabled")
	} else {
		// The gallery is usable while the weights download.
		go func() {
			loadCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			if _, err := c.registry.Load(loadCtx, cfg.ModelURL()); err != nil {
				log.WithError(err).Error("failed to load model")
				return
			}
			store.ModelChanged()
		}()
	}

	handler := handlers.NewHandler(cfg, store, c.registry, log)
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.WithFields(logrus.Fields{
		"listen": cfg.Listen,
		"files":  cfg.BaseURL,
		"folder": cfg.Folder,
		"model":  cfg.ModelURL(),
	}).Info("server starting")
	log.Info("endpoints:")
	log.Info("  GET  /                - gallery")
	log.Info("  GET  /api/gallery     - gallery state")
	log.Info("  POST /api/model       - switch dataset/weights")
	log.Info("  POST /api/classify    - classify an uploaded image")
	log.Info("  GET  /ws              - live label updates")
	log.Info("  GET  /health          - health check")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

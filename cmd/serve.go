package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/kiesman99/orthocrop/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for the crop API",
	Long: `Start an HTTP server that provides a REST API for crops.

Every subdirectory of the data root is a dataset that can be cropped with
GET /api/v1/crop?dataset=NAME&x=..&y=..&radius=..

Examples:
  # Start server on default port 8080
  orthocrop serve --data-root /srv/dop

  # Start server on custom port, at most 5 crops per second
  orthocrop serve --data-root /srv/dop --port 3000 --rate-limit 5

  # Start server with custom bind address
  orthocrop serve --bind 0.0.0.0 --port 8080`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	// Server configuration
	serveCmd.Flags().String("data-root", ".", "directory holding one subdirectory per dataset")
	serveCmd.Flags().StringP("bind", "b", "localhost", "bind address")
	serveCmd.Flags().IntP("port", "p", 8080, "port to listen on")
	serveCmd.Flags().Duration("timeout", 30*time.Second, "request timeout")
	serveCmd.Flags().Float64("rate-limit", 0, "crop requests per second (0: unlimited)")
	serveCmd.Flags().Int("burst", 10, "crop requests allowed above the rate limit in a burst")
	serveCmd.Flags().Int("catalog-cache-size", 16, "number of dataset catalogs kept in memory")

	// Bind flags to viper
	viper.BindPFlag("data-root", serveCmd.Flags().Lookup("data-root"))
	viper.BindPFlag("server.bind", serveCmd.Flags().Lookup("bind"))
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("server.timeout", serveCmd.Flags().Lookup("timeout"))
	viper.BindPFlag("server.rate-limit", serveCmd.Flags().Lookup("rate-limit"))
	viper.BindPFlag("server.burst", serveCmd.Flags().Lookup("burst"))
	viper.BindPFlag("catalog-cache-size", serveCmd.Flags().Lookup("catalog-cache-size"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	st, err := newStitcher(cfg, afero.NewOsFs(), log)
	if err != nil {
		return err
	}
	apiServer := server.NewServer(rootCmd.Version, cfg.DataRoot, st,
		server.WithRateLimit(cfg.Server.RateLimit, cfg.Server.Burst),
		server.WithLogger(log))

	addr := cfg.Server.Addr()
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      apiServer.Routes(cfg.Server.Timeout),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	// Graceful shutdown
	go func() {
		<-cmd.Context().Done()

		log.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			log.Error("server shutdown", zap.Error(err))
		}
	}()

	log.Info("starting orthocrop server",
		zap.String("addr", addr),
		zap.String("data_root", cfg.DataRoot),
		zap.String("decoder", cfg.Decoder),
		zap.String("api_docs", fmt.Sprintf("http://%s/api/v1/openapi.yaml", addr)),
		zap.String("health", fmt.Sprintf("http://%s/api/v1/health", addr)),
		zap.String("crop", fmt.Sprintf("http://%s/api/v1/crop", addr)))

	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

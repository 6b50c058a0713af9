package cmd

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/decklens/decklens/internal/server"
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the decklist OCR HTTP server",
	Long: `Start an HTTP server that exposes the decklist pipeline as a REST API.

Endpoints:
  POST /process              - process a single uploaded image
  POST /process-batch        - process up to max-batch-size images
  POST /process-batch-stream - batch processing with SSE progress events
  GET  /ws                   - batch processing over WebSocket
  GET  /health               - health check
  GET  /stats                - catalog and parser statistics
  GET  /metrics              - Prometheus metrics

Examples:
  decklens serve
  decklens serve --port 8000
  decklens serve --host 0.0.0.0 --port 3000`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		srvCfg := server.Config{
			Host:         cfg.Server.Host,
			Port:         cfg.Server.Port,
			CORSOrigin:   cfg.Server.CORSOrigin,
			MaxUploadMB:  int64(cfg.Server.MaxUploadMB),
			MaxBatchSize: cfg.Server.MaxBatchSize,
			TimeoutSec:   cfg.Server.TimeoutSec,
			MaxWorkers:   cfg.Batch.MaxWorkers,
		}
		if cmd.Flags().Changed("host") {
			srvCfg.Host, _ = cmd.Flags().GetString("host")
		}
		if cmd.Flags().Changed("port") {
			srvCfg.Port, _ = cmd.Flags().GetInt("port")
		}
		if cmd.Flags().Changed("cors-origin") {
			srvCfg.CORSOrigin, _ = cmd.Flags().GetString("cors-origin")
		}
		if cmd.Flags().Changed("max-upload-size") {
			mb, _ := cmd.Flags().GetInt("max-upload-size")
			srvCfg.MaxUploadMB = int64(mb)
		}
		if cmd.Flags().Changed("max-batch-size") {
			srvCfg.MaxBatchSize, _ = cmd.Flags().GetInt("max-batch-size")
		}
		if cmd.Flags().Changed("timeout") {
			srvCfg.TimeoutSec, _ = cmd.Flags().GetInt("timeout")
		}
		if cmd.Flags().Changed("workers") {
			srvCfg.MaxWorkers, _ = cmd.Flags().GetInt("workers")
		}

		pipe, err := buildPipeline()
		if err != nil {
			return fmt.Errorf("failed to build pipeline: %w", err)
		}
		defer func() { _ = pipe.Close() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		srv := server.NewServer(pipe, srvCfg, slog.Default())
		return srv.Start(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "host to bind the server to")
	serveCmd.Flags().IntP("port", "p", 0, "port to listen on")
	serveCmd.Flags().String("cors-origin", "", "CORS allowed origin")
	serveCmd.Flags().Int("max-upload-size", 0, "maximum upload size in MB")
	serveCmd.Flags().Int("max-batch-size", 0, "maximum images per batch request")
	serveCmd.Flags().Int("timeout", 0, "request timeout in seconds")
	serveCmd.Flags().IntP("workers", "w", 0, "worker count for parallel batch requests")
}

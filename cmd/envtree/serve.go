package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/envtree/internal/config"
	"github.com/alfredjeanlab/envtree/internal/configs"
	"github.com/alfredjeanlab/envtree/internal/crypt"
	"github.com/alfredjeanlab/envtree/internal/events"
	"github.com/alfredjeanlab/envtree/internal/server"
	"github.com/alfredjeanlab/envtree/internal/store"
	"github.com/alfredjeanlab/envtree/internal/store/memstore"
	"github.com/alfredjeanlab/envtree/internal/store/postgres"
	envsync "github.com/alfredjeanlab/envtree/internal/sync"
)

// openStore connects to the configured backend. Values are sealed with box
// at rest in Postgres; the in-memory store keeps them in process memory.
func openStore(cfg *config.Config, box *crypt.Box) (store.Store, error) {
	if cfg.InMemory() {
		return memstore.New(), nil
	}
	pg, err := postgres.New(cfg.DatabaseURL, box)
	if err != nil {
		return nil, err
	}
	return pg, nil
}

// syncDestinations builds the backup targets named in cfg. Destinations
// that fail to initialize are logged and skipped.
func syncDestinations(ctx context.Context, cfg *config.Config, logger *slog.Logger) []envsync.Destination {
	var dests []envsync.Destination
	if cfg.SyncS3Bucket != "" {
		s3Dest, err := envsync.NewS3Destination(ctx, envsync.S3Options{
			Bucket:               cfg.SyncS3Bucket,
			Key:                  cfg.SyncS3Key,
			Region:               cfg.SyncS3Region,
			Endpoint:             cfg.SyncS3Endpoint,
			ServerSideEncryption: cfg.SyncS3SSE,
		})
		if err != nil {
			logger.Error("failed to create S3 sync destination", "error", err)
		} else {
			dests = append(dests, s3Dest)
			logger.Info("sync S3 destination enabled", "bucket", cfg.SyncS3Bucket, "key", cfg.SyncS3Key)
		}
	}
	if cfg.SyncGitRepo != "" {
		gitDest, err := envsync.NewGitDestination(envsync.GitOptions{
			Repo:   cfg.SyncGitRepo,
			File:   cfg.SyncGitFile,
			Branch: cfg.SyncGitBranch,
			Push:   cfg.SyncGitPush,
		})
		if err != nil {
			logger.Error("failed to create git sync destination", "error", err)
		} else {
			dests = append(dests, gitDest)
			logger.Info("sync git destination enabled", "repo", cfg.SyncGitRepo, "file", cfg.SyncGitFile, "push", cfg.SyncGitPush)
		}
	}
	return dests
}

var serveCmd = &cobra.Command{
	Use:               "serve",
	Short:             "Start the envtree HTTP and gRPC server",
	GroupID:           "system",
	PersistentPreRunE: localCommand,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		slog.SetDefault(logger)

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		box, err := crypt.ParseKey(cfg.EncryptionKey)
		if err != nil {
			return err
		}
		if box == nil && !cfg.InMemory() {
			logger.Warn("ENVTREE_ENCRYPTION_KEY not set; config values are stored unencrypted")
		}

		st, err := openStore(cfg, box)
		if err != nil {
			return err
		}

		hub := server.NewSSEHub()
		publishers := events.MultiPublisher{hub}
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				st.Close()
				return err
			}
			publishers = append(publishers, pub)
			logger.Info("events enabled", "nats_url", cfg.NATSURL)
		} else {
			logger.Info("NATS events disabled (ENVTREE_NATS_URL not set)")
		}

		svc := configs.NewService(st, nil, publishers, logger)
		srv := server.New(svc, hub, logger)

		var grpcServer interface {
			GracefulStop()
		}
		if cfg.GRPCEnabled() {
			lis, err := net.Listen("tcp", cfg.GRPCAddr)
			if err != nil {
				publishers.Close()
				st.Close()
				return err
			}
			gs := server.NewGRPCServer(srv)
			grpcServer = gs
			go func() {
				logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
				if err := gs.Serve(lis); err != nil {
					logger.Error("gRPC server error", "error", err)
				}
			}()
		}

		if cfg.AdminToken == "" {
			logger.Warn("ENVTREE_ADMIN_TOKEN not set; anyone can register users")
		}
		httpServer := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           srv.NewHTTPHandler(cfg.AdminToken),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server error", "error", err)
			}
		}()

		var scheduler *envsync.Scheduler
		if cfg.SyncEnabled() {
			if dests := syncDestinations(context.Background(), cfg, logger); len(dests) > 0 {
				scheduler = envsync.NewScheduler(st, box, dests, cfg.SyncInterval, logger)
				scheduler.Start()
				logger.Info("sync scheduler started", "interval", cfg.SyncInterval, "sealed", box != nil)
			}
		}

		logger.Info("envtree server started",
			"http_addr", cfg.HTTPAddr,
			"grpc_addr", cfg.GRPCAddr,
			"in_memory", cfg.InMemory(),
		)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		if scheduler != nil {
			scheduler.Stop()
			logger.Info("sync scheduler stopped")
		}

		if grpcServer != nil {
			grpcServer.GracefulStop()
			logger.Info("gRPC server stopped")
		}

		// SSE streams never finish on their own; Shutdown waits for them
		// until the deadline and then the listener is closed.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "error", err)
		}
		logger.Info("HTTP server stopped")

		if err := publishers.Close(); err != nil {
			logger.Error("error closing publishers", "error", err)
		}
		if err := st.Close(); err != nil {
			logger.Error("error closing store", "error", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}

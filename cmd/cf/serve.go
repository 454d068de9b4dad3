package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/certflow/internal/config"
	"github.com/alfredjeanlab/certflow/internal/events"
	"github.com/alfredjeanlab/certflow/internal/mail"
	"github.com/alfredjeanlab/certflow/internal/presence"
	"github.com/alfredjeanlab/certflow/internal/render"
	"github.com/alfredjeanlab/certflow/internal/server"
	"github.com/alfredjeanlab/certflow/internal/store"
	"github.com/alfredjeanlab/certflow/internal/store/memory"
	"github.com/alfredjeanlab/certflow/internal/store/postgres"
	cfsync "github.com/alfredjeanlab/certflow/internal/sync"
	"github.com/alfredjeanlab/certflow/internal/workflow"
)

// openStore connects to Postgres, or keeps records in memory when the
// database URL is "memory".
func openStore(databaseURL string, logger *slog.Logger) (store.Store, error) {
	if databaseURL == "memory" {
		logger.Warn("using in-memory store; records are lost on exit")
		return memory.New(), nil
	}
	return postgres.New(databaseURL)
}

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the certflow HTTP and gRPC servers",
	GroupID: "system",
	// Override PersistentPreRunE so no client is created.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		slog.SetDefault(logger)

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		clock := clockwork.NewRealClock()

		st, err := openStore(cfg.DatabaseURL, logger)
		if err != nil {
			return err
		}

		var publisher events.Publisher
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				st.Close()
				return err
			}
			publisher = pub
			logger.Info("events enabled", "nats_url", cfg.NATSURL)
		} else {
			publisher = &events.NoopPublisher{}
			logger.Info("events disabled (CERTFLOW_NATS_URL not set)")
		}

		// The S3 bucket, when configured, archives rendered PDFs and
		// receives the periodic backup.
		var archive cfsync.ObjectStore = cfsync.NewMemoryObjects()
		var dests []cfsync.Destination
		if cfg.S3Bucket != "" {
			s3Dest, err := cfsync.NewS3Destination(context.Background(), cfg.S3Bucket, cfg.BackupKey, cfg.S3Region, cfg.S3Endpoint)
			if err != nil {
				logger.Error("failed to create S3 destination", "err", err)
			} else {
				archive = s3Dest
				dests = append(dests, s3Dest)
				logger.Info("S3 archive enabled", "bucket", cfg.S3Bucket, "backup_key", cfg.BackupKey)
			}
		}

		var mailer mail.Sender
		if cfg.SMTPAddr != "" {
			mailer = mail.NewSMTPSender(mail.SMTPConfig{
				Addr:     cfg.SMTPAddr,
				Username: cfg.SMTPUser,
				Password: cfg.SMTPPassword,
				Rate:     cfg.MailRate,
			}, logger)
			logger.Info("SMTP relay enabled", "addr", cfg.SMTPAddr, "rate", cfg.MailRate)
		} else {
			mailer = mail.NoopSender{Logger: logger}
			logger.Info("mail delivery disabled (CERTFLOW_SMTP_ADDR not set)")
		}

		hub := server.NewEventHub()
		svc := workflow.NewService(workflow.Config{
			Store:     st,
			Publisher: publisher,
			Renderer:  render.New(render.WithClock(clock), render.WithIssuer(cfg.Profile.Company)),
			Mailer:    mailer,
			MailFrom:  cfg.MailFrom,
			Archive:   archive,
			Profile:   cfg.Profile,
			Clock:     clock,
			Logger:    logger,
			Broadcast: hub.Broadcast,
		})

		workspaces := presence.New[*workflow.Workspace](svc.Open, clock)
		workspaces.StartReaper(&presence.ReaperConfig{
			IdleAfter: cfg.SessionIdle,
			OnReap: func(id, actor string) {
				logger.Info("closed idle workspace", "certificate_id", id, "actor", actor)
			},
		})

		srv := server.NewServer(svc, workspaces, hub, logger)
		grpcServer := server.NewGRPCServer(srv, cfg.AuthToken)

		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			workspaces.Stop()
			publisher.Close()
			st.Close()
			return err
		}
		go func() {
			logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("gRPC server error", "err", err)
			}
		}()

		httpServer := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           srv.NewHTTPHandler(cfg.AuthToken),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		var scheduler *cfsync.Scheduler
		if cfg.SyncInterval > 0 && len(dests) > 0 {
			scheduler = cfsync.NewScheduler(st, dests, cfg.SyncInterval, clock, logger)
			scheduler.Start()
			logger.Info("backup scheduler started", "interval", cfg.SyncInterval)
		}

		logger.Info("certflow server started",
			"grpc_addr", cfg.GRPCAddr,
			"http_addr", cfg.HTTPAddr,
			"auth", cfg.AuthToken != "",
		)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		if scheduler != nil {
			scheduler.Stop()
			logger.Info("backup scheduler stopped")
		}

		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		// Closing workspaces waits for in-flight renders and sends.
		workspaces.Stop()
		logger.Info("workspaces closed")

		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		if err := st.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}

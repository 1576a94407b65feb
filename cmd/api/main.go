// Package main is the entry point for the messaging API server.
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

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/inkwell-books/storefront-messaging/internal/account"
	"github.com/inkwell-books/storefront-messaging/internal/config"
	"github.com/inkwell-books/storefront-messaging/internal/handler"
	natsclient "github.com/inkwell-books/storefront-messaging/internal/nats"
	"github.com/inkwell-books/storefront-messaging/internal/service"
	"github.com/inkwell-books/storefront-messaging/internal/store"
	"github.com/inkwell-books/storefront-messaging/pkg/logger"
	"github.com/inkwell-books/storefront-messaging/pkg/tracing"
)

const serviceName = "storefront-messaging"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	if err := run(cfg, log); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	log.Info("starting API server",
		zap.String("store_driver", cfg.StoreDriver),
		zap.String("accounts_driver", cfg.AccountsDriver),
	)

	ctx := context.Background()

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, serviceName, cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	// MongoDB is shared by the message store and the account directory.
	var mongoDB *mongo.Database
	if cfg.UsesMongo() {
		client, db, err := store.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return err
		}
		defer client.Disconnect(context.Background())
		mongoDB = db
	}

	messages, err := openStore(ctx, cfg, mongoDB)
	if err != nil {
		return err
	}
	defer messages.Close(context.Background())

	var accounts account.Directory
	if cfg.AccountsDriver == config.DriverMongo {
		accounts = account.NewMongo(mongoDB)
	} else {
		mem, err := account.LoadMemory(cfg.AccountsFile)
		if err != nil {
			return err
		}
		accounts = mem
	}

	checks := map[string]handler.Pinger{"store": messages}

	// Events are optional: without NATS, mutations are not published.
	var (
		events   service.Publisher = service.NopPublisher{}
		replayer handler.EventReplayer
	)
	if cfg.NATSURL != "" {
		natsClient, err := natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,

			ReconnectWait: cfg.NATSReconnectWait,
			MaxReconnects: cfg.NATSMaxReconnects,
		}, log)
		if err != nil {
			return err
		}
		defer natsClient.Close()

		streamManager := natsclient.NewStreamManager(natsClient)
		if err := streamManager.EnsureStream(ctx); err != nil {
			return err
		}
		events = streamManager
		replayer = streamManager
		checks["nats"] = natsClient
	} else {
		log.Info("NATS_URL not set, event publishing disabled")
	}

	resolver := service.NewSupportAgentResolver(accounts, service.AgentPolicy{
		FallbackEmail: cfg.SupportFallbackEmail,
	}, log)
	messageSvc := service.NewMessageService(messages, accounts, resolver, events, log)
	conversationSvc := service.NewConversationService(messages, accounts, service.ListOptions{
		OverfetchFactor: cfg.InboxOverfetchFactor,
		DefaultPageSize: cfg.DefaultPageSize,
		MaxPageSize:     cfg.MaxPageSize,
		SnippetLength:   cfg.SnippetLength,
	}, log)

	router := handler.NewRouter(handler.RouterConfig{
		JWTSecret:         cfg.JWTSecret,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
		Messages:          messageSvc,
		Conversations:     conversationSvc,
		Events:            replayer,
		Health:            handler.NewHealthHandler(checks),
		Logger:            log,
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		log.Info("shutting down server", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, db *mongo.Database) (store.MessageStore, error) {
	switch cfg.StoreDriver {
	case config.DriverMongo:
		return store.NewMongo(ctx, db, cfg.MongoTransactions)
	case config.DriverSQLite:
		return store.OpenSQLite(ctx, cfg.SQLitePath)
	default:
		return store.NewMemory(), nil
	}
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"group_directory_bot/internal/config"
	"group_directory_bot/internal/directory"
	"group_directory_bot/internal/feature/command"
	"group_directory_bot/internal/feature/diffusion"
	"group_directory_bot/internal/feature/membership"
	"group_directory_bot/internal/feature/reaper"
	"group_directory_bot/internal/health"
	"group_directory_bot/internal/logging"
	"group_directory_bot/internal/store"
	"group_directory_bot/internal/substrate"
)

const (
	mongoConnectTimeout    = 10 * time.Second
	mongoIndexTimeout      = 5 * time.Second
	mongoDisconnectTimeout = 5 * time.Second
	substrateDialTimeout   = 10 * time.Second
	healthShutdownTimeout  = 5 * time.Second
	eventRetryDelay        = 2 * time.Second
)

func main() {
	configOnly := flag.Bool("config-only", false, "load and print configuration then exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Error("configuration error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.Setup(cfg)
	if err != nil {
		logging.Error("logger setup error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "logger setup error: %v\n", err)
		os.Exit(1)
	}

	if *configOnly {
		logging.Info("configuration check", logging.Fields{"event": "config_only"})
		fmt.Println("configuration check: ok")
		fmt.Println(config.FormatRedacted(cfg))
		return
	}

	logger.WithFields(logging.Fields{
		"event":    "startup",
		"mongo_db": cfg.MongoDB,
	}).Info("configuration loaded")

	connectCtx, cancel := context.WithTimeout(context.Background(), mongoConnectTimeout)
	mongoManager, err := store.NewManager(connectCtx, cfg)
	cancel()
	if err != nil {
		logger.WithError(err).Error("mongo connection error")
		fmt.Fprintf(os.Stderr, "mongo connection error: %v\n", err)
		os.Exit(1)
	}

	logger.WithField("event", "mongo_connect").Info("connected to mongo")

	indexCtx, cancelIndexes := context.WithTimeout(context.Background(), mongoIndexTimeout)
	if err := mongoManager.EnsureBaseIndexes(indexCtx); err != nil {
		cancelIndexes()
		logger.WithError(err).Error("mongo index setup error")
		fmt.Fprintf(os.Stderr, "mongo index setup error: %v\n", err)
		os.Exit(1)
	}
	cancelIndexes()

	logger.WithField("event", "mongo_indexes").Info("ensured base mongo indexes")

	dialCtx, cancelDial := context.WithTimeout(context.Background(), substrateDialTimeout)
	client, err := substrate.Dial(dialCtx, cfg.SubstrateAddr)
	cancelDial()
	if err != nil {
		logger.WithError(err).Error("substrate connection error")
		fmt.Fprintf(os.Stderr, "substrate connection error: %v\n", err)
		os.Exit(1)
	}

	logger.WithFields(logging.Fields{
		"event": "substrate_ready",
		"addr":  client.SelfAddr(),
	}).Info("connected to messaging substrate")

	dirStore := directory.NewStore(
		mongoManager.Groups(),
		mongoManager.LastSeens(),
		mongoManager.Channels(),
		mongoManager.CChats(),
		mongoManager.Counters(),
	)
	resolver := directory.NewResolver(dirStore, client, logger)
	membershipEngine := membership.NewEngine(dirStore, resolver, client, logger)
	diffusionEngine := diffusion.NewEngine(dirStore, resolver, client, cfg.MaxFileSize, logger)
	inactivityReaper := reaper.New(dirStore, client, cfg.InactiveAge, cfg.ReapInterval, logger)
	handler := command.NewHandler(dirStore, resolver, client, diffusionEngine, membershipEngine, cfg, logger)

	healthServer := health.NewServer(cfg.HTTPPort, mongoManager, dirStore, logger)
	go func() {
		if err := healthServer.ListenAndServe(); err != nil {
			logger.WithError(err).Error("health server error")
		}
	}()

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runCtx, cancelRun := context.WithCancel(context.Background())

	diffusionDone := make(chan struct{})
	go func() {
		diffusionEngine.Run(runCtx)
		close(diffusionDone)
	}()

	reaperDone := make(chan struct{})
	go func() {
		inactivityReaper.Run(runCtx)
		close(reaperDone)
	}()

	eventsDone := make(chan struct{})
	go func() {
		runEventLoop(runCtx, client, membershipEngine, handler, logger)
		close(eventsDone)
	}()

	select {
	case <-signalCtx.Done():
		logger.WithField("event", "shutdown_signal").Info("received termination signal, stopping")
	case <-eventsDone:
		logger.WithField("event", "events_stopped_early").Warn("event loop stopped before shutdown signal")
	}

	cancelRun()
	<-diffusionDone
	<-reaperDone
	<-eventsDone

	if err := client.Close(); err != nil {
		logger.WithError(err).Error("substrate disconnect error")
	}

	healthCtx, cancelHealth := context.WithTimeout(context.Background(), healthShutdownTimeout)
	if err := healthServer.Shutdown(healthCtx); err != nil {
		logger.WithError(err).Error("health server shutdown error")
	}
	cancelHealth()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), mongoDisconnectTimeout)
	if err := mongoManager.Close(shutdownCtx); err != nil {
		logger.WithError(err).Error("mongo disconnect error")
	} else {
		logger.WithField("event", "mongo_disconnect").Info("mongo client disconnected")
	}
	cancelShutdown()

	logger.WithField("event", "shutdown_complete").Info("shutdown complete")
}

// runEventLoop pulls substrate events until ctx is canceled. Handler errors
// are logged and never stop the loop; transport errors back off briefly
// before the next pull.
func runEventLoop(ctx context.Context, client *substrate.Client, engine *membership.Engine, handler *command.Handler, logger *logrus.Entry) {
	logger.WithField("event", "event_loop_started").Info("event loop running")

	for {
		event, err := client.NextEvent(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				logger.WithField("event", "event_loop_stopped").Info("event loop stopped")
				return
			}

			logger.WithField("event", "event_pull_failed").WithError(err).Warn("failed to pull substrate event")

			select {
			case <-ctx.Done():
				logger.WithField("event", "event_loop_stopped").Info("event loop stopped")
				return
			case <-time.After(eventRetryDelay):
			}
			continue
		}

		if err := dispatchEvent(ctx, event, engine, handler); err != nil {
			logger.WithFields(logging.Fields{
				"event":   "event_handling_failed",
				"kind":    string(event.Kind),
				"chat_id": event.ChatID,
			}).WithError(err).Error("failed to handle substrate event")
		}
	}
}

func dispatchEvent(ctx context.Context, event substrate.Event, engine *membership.Engine, handler *command.Handler) error {
	switch event.Kind {
	case substrate.EventMessage:
		if event.Message == nil {
			return nil
		}
		return handler.HandleMessage(ctx, *event.Message)
	case substrate.EventMemberAdded:
		return engine.HandleMemberAdded(ctx, event.ChatID, event.Member, event.Actor)
	case substrate.EventMemberRemoved:
		return engine.HandleMemberRemoved(ctx, event.ChatID, event.Member)
	case substrate.EventImageChanged:
		return engine.HandleImageChanged(ctx, event.ChatID, event.ImageDeleted)
	case substrate.EventMemberBanned:
		return engine.HandleBanned(ctx, event.Member)
	default:
		return nil
	}
}

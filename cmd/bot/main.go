package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fullsong-tgbot-go/internal/config"
	"github.com/fullsong-tgbot-go/internal/handlers"
	"github.com/fullsong-tgbot-go/internal/i18n"
	"github.com/fullsong-tgbot-go/internal/middleware"
	"github.com/fullsong-tgbot-go/internal/services/agent"
	"github.com/fullsong-tgbot-go/internal/services/cache"
	"github.com/fullsong-tgbot-go/internal/services/download"
	"github.com/fullsong-tgbot-go/internal/services/quota"
	"github.com/fullsong-tgbot-go/internal/services/relay"
	"github.com/fullsong-tgbot-go/internal/services/state"
	"github.com/fullsong-tgbot-go/pkg/logger"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	envFile := flag.String("env", ".env", "Path to .env file")
	flag.Parse()

	// Load .env file if exists
	if err := godotenv.Load(*envFile); err != nil {
		// It's okay if .env doesn't exist
		fmt.Printf("Warning: .env file not found: %v\n", err)
	}

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info("Starting FullSong Bot...")

	// Initialize bot
	bot, err := tgbotapi.NewBotAPI(cfg.Bot.Token)
	if err != nil {
		log.WithError(err).Fatal("Failed to create bot")
	}

	bot.Debug = cfg.Logging.Level == "debug"
	log.WithField("username", bot.Self.UserName).Info("Bot authorized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize quota store
	quotaStore, err := quota.NewStore(cfg.Storage.SQLite.Path, cfg.Download.DailyLimit, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize quota store")
	}
	defer func() {
		if err := quotaStore.Close(); err != nil {
			log.WithError(err).Error("Failed to close quota store")
		}
	}()

	// Initialize ephemeral state
	stateManager, err := state.NewManager(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize state storage")
	}

	// Initialize negative-result cache
	cacheService := cache.NewCache(cfg, log)

	// Initialize temp file manager
	tempManager, err := relay.NewTempManager(cfg.Download.TempDir, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize temp dir")
	}
	defer tempManager.Sweep()

	// Initialize the agent-side session and the conversation relay
	agentSession, err := agent.NewSession(&cfg.Agent, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to create agent session")
	}
	agentSession.Start(ctx)

	relayService := relay.NewRelay(agentSession, tempManager, relay.Options{
		Timeout:      cfg.Download.Timeout,
		ReplyTimeout: cfg.Download.ReplyTimeout,
		MediaTimeout: cfg.Download.MediaTimeout,
		MaxAttempts:  cfg.Download.MaxAttempts,
		MinFileSize:  cfg.Download.MinFileSize,
	}, log)

	// Initialize the orchestrator
	downloadService := download.NewService(quotaStore, relayService, cacheService, log)

	// Initialize rate limiter
	rateLimiter := middleware.NewRateLimiter(cfg, log)

	// Initialize i18n
	localizer, err := i18n.NewLocalizer(&cfg.I18n)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize i18n")
	}

	// Initialize metrics
	metrics := middleware.NewMetrics()

	group, groupCtx := errgroup.WithContext(ctx)

	// Start metrics server if enabled
	if cfg.Monitoring.Metrics.Enabled {
		group.Go(func() error {
			log.WithFields(logrus.Fields{
				"port": cfg.Monitoring.Metrics.Port,
				"path": cfg.Monitoring.Metrics.Path,
			}).Info("Starting metrics server")
			return middleware.StartMetricsServer(cfg.Monitoring.Metrics.Port, cfg.Monitoring.Metrics.Path)
		})
	}

	// Initialize handlers
	messageHandler := handlers.NewMessageHandler(
		cfg,
		bot,
		downloadService,
		stateManager,
		rateLimiter,
		metrics,
		localizer,
		log,
	)

	commandHandler := handlers.NewCommandHandler(
		bot,
		cfg,
		quotaStore,
		stateManager,
		cacheService,
		rateLimiter,
		messageHandler,
		localizer,
		log,
	)

	// Use long polling
	u := tgbotapi.NewUpdate(0)
	u.Timeout = cfg.Bot.UpdateTimeout
	updates := bot.GetUpdatesChan(u)
	log.Info("Using long polling")

	// Notify the owner that the bot is up
	if cfg.Bot.OwnerID != 0 {
		notice := localizer.Get(cfg.I18n.DefaultLanguage, i18n.MsgStartupNotice, nil)
		if _, err := bot.Send(tgbotapi.NewMessage(cfg.Bot.OwnerID, notice)); err != nil {
			log.WithError(err).Warn("Failed to notify owner")
		}
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Main bot loop
	group.Go(func() error {
		for {
			select {
			case <-groupCtx.Done():
				return nil
			case update, ok := <-updates:
				if !ok {
					return nil
				}
				if update.Message == nil {
					continue
				}

				chatType := "private"
				if update.Message.Chat.IsGroup() || update.Message.Chat.IsSuperGroup() {
					chatType = "group"
				}
				metrics.RecordMessageReceived(chatType)

				// Handle each update in its own goroutine; a download
				// conversation can run for minutes and must not block
				// other users. The per-user in-flight guard and the
				// relay's own lock keep concurrency safe.
				if update.Message.IsCommand() {
					metrics.RecordCommandExecuted(update.Message.Command())
					go func() {
						if err := commandHandler.HandleCommand(groupCtx, update.Message); err != nil {
							log.WithError(err).Error("Failed to handle command")
						}
					}()
					continue
				}

				go func() {
					if err := messageHandler.HandleMessage(groupCtx, &update); err != nil {
						log.WithError(err).Error("Failed to handle message")
					}
				}()
			}
		}
	})

	// Wait for shutdown signal
	<-sigChan
	log.Info("Shutdown signal received")

	bot.StopReceivingUpdates()
	cancel()

	// Give goroutines time to finish
	time.Sleep(2 * time.Second)

	log.Info("Bot stopped")
}

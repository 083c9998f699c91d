package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/blockedby/tgcrawler/internal/api"
	"github.com/blockedby/tgcrawler/internal/chats"
	"github.com/blockedby/tgcrawler/internal/config"
	"github.com/blockedby/tgcrawler/internal/logger"
	"github.com/blockedby/tgcrawler/internal/nats"
	"github.com/blockedby/tgcrawler/internal/peerdb"
	"github.com/blockedby/tgcrawler/internal/phones"
	"github.com/blockedby/tgcrawler/internal/repository"
	"github.com/blockedby/tgcrawler/internal/scrape"
	"github.com/blockedby/tgcrawler/internal/tasks"
	"github.com/blockedby/tgcrawler/internal/telegram"
	"github.com/blockedby/tgcrawler/internal/web"
)

func main() {
	// 1. Load config
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// 2. Initialize logger
	if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	log := logger.Get()
	log.Info().Msg("starting crawler service")

	if cfg.TGApiID == 0 || cfg.TGApiHash == "" {
		log.Fatal().Msg("TG_API_ID and TG_API_HASH are required")
	}
	if cfg.ParserID == "" {
		log.Fatal().Msg("PARSER_ID is required")
	}

	// 3. Setup context with graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("received shutdown signal")
		cancel()
	}()

	// 4. Backend REST API and repositories
	backend := api.New(cfg.APIBaseURL)
	store := repository.NewStore(backend)
	phonesRepo := repository.NewPhonesRepository(store)
	chatsRepo := repository.NewChatsRepository(store)
	chatPhonesRepo := repository.NewChatPhonesRepository(store)
	membersRepo := repository.NewMembersRepository(store)
	messagesRepo := repository.NewMessagesRepository(store)
	tasksRepo := repository.NewTasksRepository(store)

	// 5. Local peer cache
	peers, err := peerdb.Open(cfg.PeerDBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open peer db")
	}
	defer peers.Close()

	// 6. NATS
	natsClient, err := nats.New(cfg.NatsURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to nats")
	}
	defer natsClient.Close()
	log.Info().Msg("connected to nats")

	subjects := []string{cfg.Profile.HighPrioSubject, cfg.Profile.LowPrioSubject}
	if err := natsClient.EnsureStream(ctx, tasks.StreamName, subjects); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure task stream")
	}

	// 7. Telegram and coordinators
	provider := telegram.NewProvider(cfg)
	uploader := scrape.NewUploader(backend)

	authorizer := phones.NewAuthorizer(phonesRepo, provider, cfg)
	resolver := chats.NewResolver(chatsRepo, peers, provider)
	joiner := chats.NewJoiner(chatsRepo, phonesRepo, messagesRepo, provider, cfg)
	members := scrape.NewMembers(phonesRepo, membersRepo, peers, uploader, provider, cfg)
	messages := scrape.NewMessages(phonesRepo, messagesRepo, membersRepo, chatsRepo, peers, uploader, provider, cfg)
	monitor := scrape.NewMonitor(phonesRepo, chatsRepo, members, messages, peers, provider, cfg)

	// 8. Task queue and orchestration
	queue := tasks.NewQueue(natsClient, cfg.Profile.HighPrioSubject, cfg.Profile.LowPrioSubject)
	dispatcher := tasks.NewDispatcher(tasksRepo)
	service := tasks.NewService(cfg, queue, phonesRepo, chatsRepo, chatPhonesRepo,
		authorizer, resolver, joiner, members, messages, monitor)
	service.Register(dispatcher)

	if err := service.Bootstrap(ctx); err != nil {
		log.Fatal().Err(err).Msg("bootstrap failed")
	}

	// 9. Consume both priority subjects
	stopHigh, err := natsClient.Subscribe(ctx, tasks.StreamName, "crawler-high", cfg.Profile.HighPrioSubject, dispatcher.Dispatch)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to subscribe to high priority tasks")
	}
	defer stopHigh()

	stopLow, err := natsClient.Subscribe(ctx, tasks.StreamName, "crawler-low", cfg.Profile.LowPrioSubject, dispatcher.Dispatch)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to subscribe to low priority tasks")
	}
	defer stopLow()
	log.Info().Msg("consumers started")

	// 10. Ops HTTP endpoint
	server := web.NewServer(&web.Config{Port: cfg.HTTPPort}, service.Phones, service.Chats, natsClient)
	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("starting http server")
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server stopped")
			cancel()
		}
	}()

	// 11. Wait for shutdown
	<-ctx.Done()
	log.Info().Msg("shutting down")

	service.Phones.Close()
	service.Chats.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown failed")
	}

	log.Info().Msg("shutdown complete")
}

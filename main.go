package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	telegoBot "promptika-bot/bot"
	"promptika-bot/internal/auth"
	"promptika-bot/internal/channels"
	"promptika-bot/internal/config"
	"promptika-bot/internal/database"
	"promptika-bot/internal/handlers"
	"promptika-bot/internal/kie"
	"promptika-bot/internal/locales"
	"promptika-bot/internal/pipeline"
	"promptika-bot/internal/publisher"
	"promptika-bot/internal/resolver"
	"promptika-bot/internal/review"
	"promptika-bot/internal/rewriter"
	"promptika-bot/internal/scheduler"

	sentry "github.com/getsentry/sentry-go"
	telego "github.com/mymmrac/telego"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	locales.Init(cfg.DefaultLanguage)

	err = sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		Environment:      cfg.AppEnv,
		Release:          cfg.Version,
		EnableTracing:    true,
		TracesSampleRate: 1.0,
		Debug:            cfg.Debug,
	})
	if err != nil {
		log.Fatalf("sentry.Init: %s", err)
	}
	defer sentry.Flush(2 * time.Second)
	report := func(err error) { sentry.CaptureException(err) }

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, db, err := database.ConnectDB(ctx, cfg)
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal(err)
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			log.Printf("Error disconnecting from MongoDB: %v", err)
			sentry.CaptureException(err)
		} else {
			log.Println("Disconnected from MongoDB.")
		}
	}()
	if err := database.EnsureIndexes(ctx, db); err != nil {
		sentry.CaptureException(err)
		log.Fatalf("Failed to ensure indexes: %v", err)
	}

	draftRepo := database.NewMongoDraftRepository(db)
	tokenRepo := database.NewMongoPromptTokenRepository(db)
	settingRepo := database.NewMongoSettingRepository(db)
	channelRepo := database.NewMongoChannelRepository(db)
	adminRepo := database.NewMongoAdminRepository(db)
	postLogger := database.NewMongoPostLogger(db)

	kieClient, err := kie.NewClient(kie.Options{
		APIKey:       cfg.KIEAPIKey,
		BaseURL:      cfg.KIEAPIBase,
		CreatePath:   cfg.KIECreatePath,
		QueryPath:    cfg.KIEQueryPath,
		Model:        cfg.KIEModel,
		OutputFormat: cfg.KIEOutputFormat,
		ImageSize:    cfg.KIEImageSize,
		PollInterval: cfg.KIEPollInterval,
		MaxAttempts:  cfg.KIEMaxAttempts,
	})
	if err != nil {
		sentry.CaptureException(err)
		log.Fatalf("Failed to create KIE client: %v", err)
	}
	defer kieClient.Close()

	captionGen, err := rewriter.New(rewriter.Options{
		APIKey:             cfg.OpenAIAPIKey,
		Model:              cfg.OpenAIModel,
		SystemInstructions: cfg.OpenAISystemInstructions,
		DefaultTemplate:    cfg.RewriteTemplate,
	})
	if err != nil {
		sentry.CaptureException(err)
		log.Fatalf("Failed to create rewriter: %v", err)
	}

	var bot *telego.Bot
	if cfg.Debug {
		bot, err = telego.NewBot(cfg.BotToken, telego.WithDefaultDebugLogger())
	} else {
		bot, err = telego.NewBot(cfg.BotToken, telego.WithDefaultLogger(false, false))
	}
	if err != nil {
		sentry.CaptureException(err)
		log.Fatalf("Failed to create telego bot: %v", err)
	}

	channelPublisher, err := publisher.New(bot)
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal(err)
	}

	pl, err := pipeline.New(
		draftRepo,
		tokenRepo,
		settingRepo,
		postLogger,
		kieClient,
		captionGen,
		channelPublisher,
		report,
		pipeline.Config{
			MediaDir:           cfg.MediaDir,
			KieRegenTemplate:   cfg.KieRegenTemplate,
			RewriteTemplate:    cfg.RewriteTemplate,
			DefaultDestination: cfg.Destination,
			PublishBatchSize:   cfg.PublishBatchSize,
			EmptyCaptionPlaceholder: locales.GetMessage(
				locales.NewLocalizer(locales.GetDefaultLanguageTag().String()),
				"MsgEmptyCaptionPlaceholder", nil),
			ExternalBotUsername: cfg.ExternalBotUsername,
			ExternalButtonText:  cfg.ExternalButtonText,
		},
	)
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal(err)
	}

	adminChecker, err := auth.NewAdminChecker(cfg.AdminIDs, adminRepo)
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal(err)
	}
	channelCache := channels.NewCache(channelRepo, channels.DefaultTTL)

	notifier, err := review.NewNotifier(bot)
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal(err)
	}
	reviewManager, err := review.NewManager(bot, draftRepo, pl, cfg.BotToken)
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal(err)
	}

	messageHandler, err := handlers.NewMessageHandler(
		cfg.ReviewChatID,
		cfg.WatcherSenderID,
		cfg.BotToken,
		draftRepo,
		settingRepo,
		channelRepo,
		adminRepo,
		pl,
		notifier,
		channelCache,
		adminChecker,
	)
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal(err)
	}

	updates, err := bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		sentry.CaptureException(err)
		log.Fatalf("Failed to start long polling: %v", err)
	}

	appBot, err := telegoBot.New(telegoBot.BotDeps{
		Bot:         bot,
		UpdatesChan: updates,
		Debug:       cfg.Debug,
		Handler:     messageHandler,
		ReviewMgr:   reviewManager,
	})
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal(err)
	}

	publishScheduler, err := scheduler.New(pl, cfg.PublishEvery)
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal(err)
	}
	go publishScheduler.Run(ctx)

	resolverServer, err := resolver.New(tokenRepo, cfg.ResolverAPIKey, cfg.ResolverBind, cfg.ResolverPort)
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal(err)
	}
	go func() {
		if err := resolverServer.Run(ctx); err != nil {
			log.Printf("Resolver server error: %v", err)
			sentry.CaptureException(err)
		}
	}()

	go appBot.Start(ctx)

	<-ctx.Done()
	log.Println("Shutting down bot...")
	log.Println("Bot shutdown complete.")
}

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/abelzeko/aqua-monitor/internal/api"
	"github.com/abelzeko/aqua-monitor/internal/config"
	"github.com/abelzeko/aqua-monitor/internal/integration/openai"
	"github.com/abelzeko/aqua-monitor/internal/repository"
	"github.com/abelzeko/aqua-monitor/internal/usecases"
)

func main() {
	// Configure logging
	log.SetOutput(os.Stdout)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("Starting AquaMonitor bot...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.RequireTelegram(); err != nil {
		log.Fatal(err)
	}

	// Free-text questions are optional; commands work without OpenAI
	var interpreter openai.QueryInterpreter
	if cfg.OpenAIAPIKey != "" {
		interpreter, err = openai.NewOpenAIService(cfg.OpenAIAPIKey)
		if err != nil {
			log.Fatalf("Failed to initialize OpenAI service: %v", err)
		}
	} else {
		log.Println("OPENAI_API_KEY not set, free-text questions are disabled")
	}

	repo, err := repository.NewSQLiteAssessmentRepository(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize repository: %v", err)
	}
	defer repo.Close()

	useCase := usecases.NewAssessmentUseCase(repo, nil, interpreter, nil, nil)

	telegramBot, err := api.NewTelegramBot(cfg.TelegramBotToken, useCase)
	if err != nil {
		log.Fatalf("Failed to initialize Telegram bot: %v", err)
	}

	c := cron.New()
	_, err = c.AddFunc(cfg.DigestSchedule, func() {
		if err := telegramBot.SendDigest(cfg.DigestWindow); err != nil {
			log.Printf("Scheduled digest failed: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("Failed to set up digest job: %v", err)
	}
	c.Start()
	log.Printf("Digest scheduled with '%s'", cfg.DigestSchedule)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return telegramBot.Start(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		<-c.Stop().Done()
		log.Println("Digest scheduler stopped")
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Printf("Bot stopped with error: %v", err)
	}
}

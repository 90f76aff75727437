package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"

	"github.com/abelzeko/aqua-monitor/internal/config"
	"github.com/abelzeko/aqua-monitor/internal/integration"
	"github.com/abelzeko/aqua-monitor/internal/repository"
	"github.com/abelzeko/aqua-monitor/internal/usecases"
)

func main() {
	// Configure logging
	log.SetOutput(os.Stdout)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("Starting AquaMonitor pond poller...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.RequireFeeds(); err != nil {
		log.Fatal(err)
	}

	repo, err := repository.NewSQLiteAssessmentRepository(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize repository: %v", err)
	}
	defer repo.Close()

	location, err := cfg.FeedTimeLocation()
	if err != nil {
		log.Fatalf("Failed to load feed time zone: %v", err)
	}

	scraper := integration.NewPondScraper(cfg.FeedTimeout, location)
	useCase := usecases.NewAssessmentUseCase(repo, scraper, nil, nil, cfg.PondFeedURLs)

	c, err := newScheduler(cfg.PollSchedule, useCase)
	if err != nil {
		log.Fatalf("Failed to set up cron job: %v", err)
	}

	// Run immediately on startup
	refresh(useCase)

	c.Start()
	log.Printf("Poller scheduled with '%s' for %d feeds", cfg.PollSchedule, len(cfg.PondFeedURLs))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Println("Stopping poller...")
	<-c.Stop().Done()
}

// newScheduler registers the refresh job on schedule without starting it
func newScheduler(schedule string, useCase *usecases.AssessmentUseCase) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() { refresh(useCase) }); err != nil {
		return nil, err
	}
	return c, nil
}

func refresh(useCase *usecases.AssessmentUseCase) {
	if err := useCase.RefreshPondReadings(); err != nil {
		log.Printf("Pond readings refresh failed: %v", err)
	}
}

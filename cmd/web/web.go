package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/abelzeko/aqua-monitor/internal/api"
	"github.com/abelzeko/aqua-monitor/internal/config"
	"github.com/abelzeko/aqua-monitor/internal/repository"
	"github.com/abelzeko/aqua-monitor/internal/usecases"
)

func main() {
	// Configure logging
	log.SetOutput(os.Stdout)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("Starting AquaMonitor web server...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	repo, err := repository.NewSQLiteAssessmentRepository(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize repository: %v", err)
	}
	defer repo.Close()

	useCase := usecases.NewAssessmentUseCase(repo, nil, nil, nil, nil)
	server := api.NewWebServer(useCase)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.ListenAndServe(ctx, cfg.HTTPAddr)
	})

	if err := g.Wait(); err != nil {
		log.Printf("Web server stopped with error: %v", err)
	}
}

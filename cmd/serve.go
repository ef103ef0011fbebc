package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"example.com/lifeline/agent/config"
	"example.com/lifeline/agent/internal/api"
	"example.com/lifeline/agent/internal/database"
	"example.com/lifeline/agent/internal/repositories"
	"example.com/lifeline/agent/internal/services"
	"example.com/lifeline/agent/internal/sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local API and the periodic sync engine",
	Long: `Start the local HTTP API used by the app shell and the operator
views, together with the background engine that periodically pushes queued
events and pulls remote changes.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return err
	}

	if cfg.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	db, err := database.Open(cfg.DB)
	if err != nil {
		return err
	}

	deps := buildDeps(cfg, db)

	server := api.NewServer(cfg, api.Deps{
		Donors:       deps.donorService,
		Donations:    deps.donationService,
		Appointments: deps.appointmentService,
		Queue:        deps.queue,
		Engine:       deps.engine,
	})

	g.Go(func() error {
		return server.Start()
	})

	g.Go(func() error {
		if err := deps.engine.StartPeriodic(ctx, cfg.Sync.Interval); err != nil {
			return err
		}

		<-ctx.Done()

		// Only the timer is cancelled; a cycle already in flight completes.
		return deps.engine.StopPeriodic()
	})

	g.Go(func() error {
		<-ctx.Done()
		return server.Shutdown(context.Background())
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Service error")
		return err
	}

	log.Info().Msg("Agent shutting down gracefully")
	return nil
}

// agentDeps wires the repositories, services and sync engine over one store
type agentDeps struct {
	queue              *repositories.QueueRepository
	engine             *sync.Engine
	donorService       *services.DonorService
	donationService    *services.DonationService
	appointmentService *services.AppointmentService
}

func buildDeps(cfg config.Config, db *gorm.DB) agentDeps {
	queue := repositories.NewQueueRepository(db, cfg.Sync.MaxRetries)
	cursor := repositories.NewCursorRepository(db)
	donors := repositories.NewDonorRepository(db)
	donations := repositories.NewDonationRepository(db)
	appointments := repositories.NewAppointmentRepository(db)

	client := sync.NewClient(cfg.Sync.BaseURL, cfg.Sync.HTTPTimeout, sync.StaticToken(cfg.Sync.APIToken))
	pusher := sync.NewPusher(queue, cursor, donors, donations, appointments, client, cfg.Sync.BatchSize)
	puller := sync.NewPuller(cursor, donors, donations, appointments, client, cfg.Sync.PullPageSize)
	engine := sync.NewEngine(queue, pusher, puller, nil)

	return agentDeps{
		queue:              queue,
		engine:             engine,
		donorService:       services.NewDonorService(db, donors, queue),
		donationService:    services.NewDonationService(db, donors, donations, queue),
		appointmentService: services.NewAppointmentService(db, donors, appointments, queue),
	}
}

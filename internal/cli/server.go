package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"lantern-quiz-service/internal/app"
	"lantern-quiz-service/internal/domain"
	redisinfra "lantern-quiz-service/internal/infra/redis"
	"lantern-quiz-service/internal/metrics"
	transport "lantern-quiz-service/internal/transport/http"
)

const defaultClaimRetries = 2

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the riddle server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	b, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	if b.kind == "memory" {
		for _, r := range sampleRiddles() {
			if err := b.seeder.PutRiddle(ctx, r); err != nil {
				return err
			}
		}
	}
	if err := applyConfiguredWindow(ctx, cfg, b.windows); err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	hub := app.NewHub(m)
	defer hub.Close()

	var broadcaster app.Broadcaster = hub
	var relay *redisinfra.Relay
	if b.redis != nil {
		relay = redisinfra.NewRelay(b.redis, cfg.Redis.Channel, hub, log)
		broadcaster = relay
	}

	engine := app.NewRiddleEngine(b.riddles, b.ledger, b.directory, broadcaster,
		app.WithWindowSource(b.windows),
		app.WithLogger(log.With().Str("component", "engine").Logger()),
		app.WithMetrics(m),
		app.WithClaimRetries(cfg.ClaimRetries(defaultClaimRetries)),
	)
	participants := app.NewParticipantService(b.participants)
	records := app.NewRecordService(b.records)

	api := transport.NewAPI(engine, records, participants, b.windows, log.With().Str("component", "api").Logger())
	ws := transport.NewWSHandler(engine, participants, hub, log.With().Str("component", "ws").Logger())

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           transport.NewRouter(api, ws, m.Handler()),
		ReadHeaderTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Str("backend", b.kind).Msg("starting lantern quiz service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if relay != nil {
		g.Go(func() error { return relay.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// sampleRiddles seeds the in-memory backend so the service is playable without a database.
func sampleRiddles() []domain.Riddle {
	base := time.Now()
	return []domain.Riddle{
		{ID: "lantern-1", Question: "What glows on the fifteenth night of the first month?", Answer: "lantern", Remark: "Think paper and candlelight", CreatedAt: base},
		{ID: "lantern-2", Question: "Round as the full moon, sweet inside, eaten together on festival night. What am I?", Answer: "tangyuan", Options: []string{"mooncake", "tangyuan", "dumpling"}, CreatedAt: base.Add(time.Second)},
		{ID: "lantern-3", Question: "The more you take, the more you leave behind. What are they?", Answer: "footsteps", CreatedAt: base.Add(2 * time.Second)},
	}
}

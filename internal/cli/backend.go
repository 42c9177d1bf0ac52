package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"lantern-quiz-service/internal/app"
	"lantern-quiz-service/internal/config"
	"lantern-quiz-service/internal/domain"
	"lantern-quiz-service/internal/infra/memory"
	"lantern-quiz-service/internal/infra/postgres"
	redisinfra "lantern-quiz-service/internal/infra/redis"
	"lantern-quiz-service/internal/logging"
)

type riddleSeeder interface {
	PutRiddle(ctx context.Context, r domain.Riddle) error
}

// backend bundles the storage ports chosen by config: Postgres when
// postgres.url is set, else Redis when redis.addr is set, else memory.
type backend struct {
	kind         string
	riddles      app.RiddleStore
	ledger       app.AttemptLedger
	records      app.RecordProjection
	participants app.ParticipantStore
	directory    app.ParticipantDirectory
	windows      app.WindowStore
	seeder       riddleSeeder
	redis        *redis.Client
	closers      []func()
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackend(ctx context.Context, cfg config.Config, log zerolog.Logger) (*backend, error) {
	b := &backend{}

	if cfg.Redis.Addr != "" {
		b.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		b.closers = append(b.closers, func() { _ = b.redis.Close() })
		if err := b.redis.Ping(ctx).Err(); err != nil {
			b.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
	}

	switch {
	case cfg.Postgres.URL != "":
		db := postgres.OpenBun(cfg.Postgres.URL)
		b.closers = append(b.closers, func() { _ = db.Close() })
		if _, err := postgres.Migrate(ctx, db); err != nil {
			b.Close()
			return nil, err
		}
		pool, err := postgres.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.closers = append(b.closers, pool.Close)

		store := postgres.NewStore(pool)
		b.kind = "postgres"
		b.riddles, b.ledger, b.seeder = store, store, store
		b.records = postgres.NewRecords(db)
		b.participants = postgres.NewParticipantStore(pool)
		b.windows = postgres.NewWindowStore(pool)
	case b.redis != nil:
		store := redisinfra.NewStore(b.redis)
		b.kind = "redis"
		b.riddles, b.ledger, b.records, b.participants, b.windows, b.seeder = store, store, store, store, store, store
	default:
		store := memory.NewStore()
		b.kind = "memory"
		b.riddles, b.ledger, b.records, b.participants, b.windows, b.seeder = store, store, store, store, store, store
	}

	ttl := config.TTLDuration(cfg.Participants.TTL, 10*time.Minute)
	if b.redis != nil {
		b.directory = redisinfra.NewParticipantCache(b.redis, b.participants, ttl)
	} else {
		b.directory = memory.NewParticipantCache(b.participants, ttl)
	}

	log.Info().Str("backend", b.kind).Bool("redis", b.redis != nil).Msg("storage ready")
	return b, nil
}

// applyConfiguredWindow stores the configured activity window unless an
// administrator has already set one.
func applyConfiguredWindow(ctx context.Context, cfg config.Config, windows app.WindowStore) error {
	configured, err := cfg.Window()
	if err != nil {
		return err
	}
	if configured == (domain.Window{}) {
		return nil
	}
	current, err := windows.Window(ctx)
	if err != nil {
		return err
	}
	if current != (domain.Window{}) {
		return nil
	}
	return windows.SetWindow(ctx, configured)
}

func loadConfig(path string) (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, zerolog.Nop(), err
	}
	level := cfg.Log.Level
	if logLevel != "" {
		level = logLevel
	}
	return cfg, logging.New(level), nil
}

// Command server runs the polls authentication gateway.
//
// Configuration is read from a YAML file (--config, POLLS_CONFIG,
// ./config.yaml or /etc/polls/config.yaml) and POLLS_* environment
// variables. See pkg/config for the full list.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/rhuss/polls/pkg/auth"
	authjwt "github.com/rhuss/polls/pkg/auth/jwt"
	"github.com/rhuss/polls/pkg/config"
	"github.com/rhuss/polls/pkg/debug"
	"github.com/rhuss/polls/pkg/storage"
	"github.com/rhuss/polls/pkg/storage/memory"
	"github.com/rhuss/polls/pkg/storage/postgres"
	transporthttp "github.com/rhuss/polls/pkg/transport/http"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	debug.Init(cfg.Logging.Debug, cfg.Logging.Level, cfg.Logging.Format)
	logger := slog.Default()

	ctx := context.Background()

	store, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := seedUsers(ctx, store, cfg.Auth.SeedUsers); err != nil {
		return err
	}

	codec, err := authjwt.NewCodec(cfg.Auth.Token.CodecConfig())
	if err != nil {
		return fmt.Errorf("creating token codec: %w", err)
	}

	rules, err := cfg.Auth.PolicyRules()
	if err != nil {
		return fmt.Errorf("building access policy: %w", err)
	}
	policy, err := auth.NewPolicy(rules)
	if err != nil {
		return fmt.Errorf("building access policy: %w", err)
	}

	resolver := auth.NewResolver(store,
		auth.WithLookupTimeout(cfg.Auth.LookupTimeout),
		auth.WithCache(cfg.Auth.PrincipalCache.Size, cfg.Auth.PrincipalCache.TTL),
	)
	filter := auth.NewFilter(codec, resolver, auth.WithLogger(logger))
	entry := auth.NewEntryPoint(
		auth.WithEntryPointLogger(logger),
		auth.WithExpiryReason(cfg.Auth.ExposeExpiryReason),
	)

	adapterCfg := transporthttp.DefaultConfig()
	adapterCfg.MaxBodySize = cfg.Server.MaxBodySize
	adapterCfg.MetricsPath = ""
	if cfg.Observability.Metrics.Enabled {
		adapterCfg.MetricsPath = cfg.Observability.Metrics.Path
	}
	adapter := transporthttp.NewAdapter(store, codec, entry, adapterCfg,
		transporthttp.WithSigninLimiter(auth.NewInProcessLimiter(cfg.Auth.SigninRateLimit)),
		transporthttp.WithAdapterLogger(logger),
	)

	srv := transporthttp.NewServer(adapter,
		transporthttp.Guard{Filter: filter, Policy: policy, EntryPoint: entry},
		transporthttp.WithAddr(":"+strconv.Itoa(cfg.Server.Port)),
		transporthttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
		transporthttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		transporthttp.WithCORS(cfg.CORS.Transport()),
		transporthttp.WithLogger(logger),
	)

	logger.Info("polls server configured",
		"storage", cfg.Storage.Type,
		"algorithm", codec.Algorithm(),
		"token_ttl", codec.TTL(),
		"rules", len(rules),
		"debug", debug.Categories(),
	)
	return srv.ListenAndServe()
}

// newStore creates the configured identity store.
func newStore(ctx context.Context, cfg *config.Config) (storage.UserStore, error) {
	switch cfg.Storage.Type {
	case "postgres":
		pg, err := postgres.New(ctx, postgres.Config{
			DSN:            cfg.Storage.Postgres.DSN,
			MaxConns:       cfg.Storage.Postgres.MaxConns,
			MigrateOnStart: cfg.Storage.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, fmt.Errorf("creating postgres store: %w", err)
		}
		slog.Info("storage enabled", "type", "postgres")
		return pg, nil
	default:
		slog.Info("storage enabled", "type", "memory")
		return memory.New(), nil
	}
}

func seedUsers(ctx context.Context, store storage.UserStore, seeds []config.SeedUserConfig) error {
	if len(seeds) == 0 {
		return nil
	}
	users := make([]storage.User, 0, len(seeds))
	for _, s := range seeds {
		users = append(users, storage.User{
			Name:         s.Name,
			Username:     s.Username,
			Email:        s.Email,
			PasswordHash: s.PasswordHash,
			Roles:        s.Roles,
		})
	}
	created, err := storage.Seed(ctx, store, users)
	if err != nil {
		return err
	}
	slog.Info("seed users applied", "created", created, "configured", len(seeds))
	return nil
}

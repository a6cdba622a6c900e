package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/example/clinic-pos/internal/api"
	"github.com/example/clinic-pos/internal/auth"
	"github.com/example/clinic-pos/internal/checkout"
	"github.com/example/clinic-pos/internal/config"
	"github.com/example/clinic-pos/internal/dispatch"
	"github.com/example/clinic-pos/internal/domain/order"
	"github.com/example/clinic-pos/internal/infrastructure/kafka"
	"github.com/example/clinic-pos/internal/infrastructure/store"
	"github.com/example/clinic-pos/internal/metrics"
	"github.com/example/clinic-pos/internal/receiving"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pos-server",
		Short: "Clinic point-of-sale checkout server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the checkout API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			seedPath, _ := cmd.Flags().GetString("seed")
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runServer(cfg, newLogger(cfg), seedPath)
		},
	}
	cmd.Flags().String("seed", "", "JSON file of products and opening stock to load before serving")
	return cmd
}

func runServer(cfg *config.Config, logger zerolog.Logger, seedPath string) error {
	ctx := context.Background()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	numbers, err := order.NewNumberer(cfg.NodeID)
	if err != nil {
		return err
	}
	receivingSvc := receiving.NewService(st, numbers, logger)
	if seedPath != "" {
		products, batches, err := seedFromFile(ctx, receivingSvc, seedPath)
		if err != nil {
			return fmt.Errorf("seed %s: %w", seedPath, err)
		}
		logger.Info().Str("file", seedPath).Int("products", products).Int("batches", batches).Msg("store seeded")
	}
	m := metrics.New()

	var sinks []dispatch.Sink
	if cfg.KafkaEnabled() {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		sinks = append(sinks, dispatch.NewKafkaSink(producer))
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("publishing orders to kafka")
	} else {
		sinks = append(sinks, dispatch.NewLogSink(logger))
	}
	dispatcher := dispatch.New(cfg.Dispatch(), sinks, m, logger)
	dispatcher.Start()

	engine := checkout.NewEngine(st, numbers, cfg.Checkout(),
		checkout.WithPublisher(dispatcher),
		checkout.WithMetrics(m),
		checkout.WithLogger(logger),
	)

	routerCfg := api.RouterConfig{Logger: logger, Metrics: m}
	if cfg.JWTSecret != "" {
		routerCfg.JWT = auth.NewJWTService(cfg.JWTSecret, 12*time.Hour)
	} else {
		logger.Warn().Msg("JWT_SECRET not set, every request runs with development admin claims")
	}
	e := api.NewRouter(api.NewHandlers(engine, receivingSvc, st), routerCfg)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().
			Str("addr", addr).
			Str("store", cfg.StoreDriver).
			Str("timezone", cfg.Timezone).
			Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("dispatcher did not drain")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the schema of the configured store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := context.Background()

			switch cfg.StoreDriver {
			case config.DriverPostgres:
				db, err := store.ConnectPostgres(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
				if err != nil {
					return err
				}
				defer db.Close()

				applied, err := store.NewMigrator(db).Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				for _, name := range applied {
					fmt.Printf("applied %s\n", name)
				}
				fmt.Printf("Applied %d migration(s) successfully.\n", len(applied))
			case config.DriverDynamo:
				client, err := store.NewDynamoClient(ctx, cfg.AWSRegion, cfg.DynamoEndpoint)
				if err != nil {
					return err
				}
				created, err := store.EnsureDynamoTable(ctx, client, cfg.DynamoTable, 2*time.Minute)
				if err != nil {
					return err
				}
				if created {
					fmt.Printf("Created table %s.\n", cfg.DynamoTable)
				} else {
					fmt.Printf("Table %s already exists.\n", cfg.DynamoTable)
				}
			default:
				fmt.Println("The memory store has no schema, nothing to do.")
			}
			return nil
		},
	}
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file>",
		Short: "Load products and opening stock from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.StoreDriver == config.DriverMemory {
				return fmt.Errorf("the memory store does not outlive this command, use serve --seed %s", args[0])
			}
			logger := newLogger(cfg)
			ctx := context.Background()

			st, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()
			numbers, err := order.NewNumberer(cfg.NodeID)
			if err != nil {
				return err
			}

			products, batches, err := seedFromFile(ctx, receiving.NewService(st, numbers, logger), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Seeded %d product(s) and %d batch(es).\n", products, batches)
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a till or back-office user",
		RunE: func(cmd *cobra.Command, args []string) error {
			cashier, _ := cmd.Flags().GetString("cashier")
			role, _ := cmd.Flags().GetString("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			if cashier == "" {
				return fmt.Errorf("--cashier is required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return fmt.Errorf("JWT_SECRET is not set")
			}

			token, expiresAt, err := auth.NewJWTService(cfg.JWTSecret, ttl).GenerateToken(cashier, role)
			if err != nil {
				return err
			}
			fmt.Println(token)
			fmt.Fprintf(os.Stderr, "expires at %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().String("cashier", "", "Cashier or user identifier")
	cmd.Flags().String("role", auth.RoleCashier, "Role: cashier, inventory or admin")
	cmd.Flags().Duration("ttl", 12*time.Hour, "Token lifetime")
	return cmd
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cppla/guildhall/config"
	"github.com/cppla/guildhall/models"
	"github.com/cppla/guildhall/routes"
	"github.com/cppla/guildhall/services"
	"github.com/cppla/guildhall/stores"
	"github.com/cppla/guildhall/utils"
)

var (
	configPath    string
	storageDriver string

	rootCmd = &cobra.Command{
		Use:          "guildhall",
		Short:        "Community engagement backend: streaks, quizzes, referrals and leaderboards",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configPath != "" {
				config.DefaultPath = configPath
			}
			cfg := config.Load()
			if storageDriver != "" {
				cfg.StorageDriver = storageDriver
				cfg = config.Override(cfg)
			}
			return utils.InitLogger(cfg)
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE:  runServe,
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Create or extend the MySQL tables",
		RunE:  runMigrate,
	}

	seedCmd = &cobra.Command{
		Use:   "seed",
		Short: "Insert the sample quizzes",
		RunE:  runSeed,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (default config/config.yaml or $CONFIG_PATH)")
	rootCmd.PersistentFlags().StringVar(&storageDriver, "storage", "", "storage driver override: mysql or memory")
	rootCmd.AddCommand(serveCmd, migrateCmd, seedCmd)
}

// openStore returns the configured store and a function releasing its resources.
// MySQL tables are migrated on open.
func openStore(cfg config.AppConfig) (services.Store, func(), error) {
	switch strings.ToLower(cfg.StorageDriver) {
	case "memory":
		return stores.NewMemoryStore(), func() {}, nil
	case "mysql":
		db, err := config.OpenDatabase(cfg)
		if err != nil {
			return nil, nil, err
		}
		if err := config.Migrate(db, stores.Models()...); err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		return stores.NewGormStore(db), closeFn, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	defer func() { _ = utils.L().Sync() }()

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	rc := utils.GetRedis()
	if rc == nil {
		utils.L().Warn("redis unavailable, caching disabled and limits kept in process memory")
	}
	svc := routes.NewServices(cfg, store, utils.NewRedisCache(rc))
	if cfg.StorageDriver == "memory" {
		if err := seedQuizzes(cmd.Context(), svc.Catalog); err != nil {
			return err
		}
	}
	r := routes.SetupRouter(svc)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	utils.Sugar.Infof("Starting server on port %s (storage %s, graceful)", cfg.AppPort, cfg.StorageDriver)
	return utils.NewServer(":"+cfg.AppPort, r).Run(ctx)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	if cfg.StorageDriver != "mysql" {
		return errors.New("migrate requires the mysql storage driver")
	}
	db, err := config.OpenDatabase(cfg)
	if err != nil {
		return err
	}
	if err := config.Migrate(db, stores.Models()...); err != nil {
		return err
	}
	utils.L().Info("migration complete")
	return nil
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	if cfg.StorageDriver != "mysql" {
		return errors.New("seed requires the mysql storage driver; the memory driver seeds itself on serve")
	}
	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	catalog := services.NewQuizCatalog(store, utils.NewRedisCache(utils.GetRedis()), 0)
	return seedQuizzes(cmd.Context(), catalog)
}

// seedQuizzes creates the sample quizzes unless a quiz with the same title exists.
func seedQuizzes(ctx context.Context, catalog *services.QuizCatalog) error {
	existing, err := catalog.AllForAdmin(ctx)
	if err != nil {
		return err
	}
	titles := make(map[string]bool, len(existing))
	for _, q := range existing {
		titles[q.Title] = true
	}
	for _, q := range sampleQuizzes() {
		if titles[q.Title] {
			continue
		}
		if err := catalog.Create(ctx, &q); err != nil {
			return fmt.Errorf("seed %q: %w", q.Title, err)
		}
		utils.L().Info("seeded quiz", zap.String("title", q.Title), zap.Uint("id", q.ID))
	}
	return nil
}

func sampleQuizzes() []models.Quiz {
	return []models.Quiz{
		{
			Title:       "DAO Basics",
			Description: "How decentralized organizations make decisions.",
			Points:      30,
			Active:      true,
			Questions: []models.QuizQuestion{
				{Prompt: "What does DAO stand for?", Options: []string{"Decentralized Autonomous Organization", "Digital Asset Office", "Distributed Access Order"}, CorrectAnswer: 0},
				{Prompt: "Who usually votes on DAO proposals?", Options: []string{"A single admin", "Token or membership holders", "Nobody"}, CorrectAnswer: 1},
				{Prompt: "Where are DAO rules typically enforced?", Options: []string{"Paper contracts", "Smart contracts", "Email threads"}, CorrectAnswer: 1},
			},
		},
		{
			Title:       "Community Etiquette",
			Description: "Getting along in the forum and chat.",
			Points:      20,
			Active:      true,
			Questions: []models.QuizQuestion{
				{Prompt: "Where should a new proposal be discussed first?", Options: []string{"The governance forum", "Private messages to admins"}, CorrectAnswer: 0},
				{Prompt: "What earns the most streak credit?", Options: []string{"Checking in once every day", "Checking in ten times in one day"}, CorrectAnswer: 0},
			},
		},
	}
}

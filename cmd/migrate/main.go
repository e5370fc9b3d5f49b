package main

import (
	"context"
	"flag"

	"go.uber.org/zap"

	"ourofino-storefront/internal/config"
	"ourofino-storefront/internal/db"
	"ourofino-storefront/internal/logging"
	"ourofino-storefront/internal/migrate"
)

func main() {
	var down int
	flag.IntVar(&down, "down", 0, "Roll back this many versions instead of migrating up")
	flag.Parse()

	cfg := config.FromEnv()
	logger := logging.New(cfg.LogLevel, "migrate")
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DBConnString, logger)
	if err != nil {
		logger.Fatal("connect db", zap.Error(err))
	}
	defer pool.Close()

	runner, err := migrate.Open(ctx, pool, logger)
	if err != nil {
		logger.Fatal("open migrations", zap.Error(err))
	}
	defer runner.Close()

	if down > 0 {
		err = runner.Down(down)
	} else {
		err = runner.Up()
	}
	if err != nil {
		logger.Fatal("migrate", zap.Int("down", down), zap.Error(err))
	}
	logger.Info("migrations applied")
}

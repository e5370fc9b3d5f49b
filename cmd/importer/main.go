package main

import (
	"context"
	"flag"
	"os"
	"time"

	"go.uber.org/zap"

	"ourofino-storefront/internal/config"
	"ourofino-storefront/internal/importer"
	"ourofino-storefront/internal/logging"
	categoryrepo "ourofino-storefront/internal/repository/category"
	productrepo "ourofino-storefront/internal/repository/product"
	categorysvc "ourofino-storefront/internal/service/category"
	"ourofino-storefront/internal/strapi"
)

func main() {
	var filePath string
	flag.StringVar(&filePath, "file", "", "Path to the catalog CSV export")
	flag.Parse()

	if filePath == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.FromEnv()
	logger := logging.New(cfg.LogLevel, "importer")
	defer func() { _ = logger.Sync() }()

	f, err := os.Open(filePath)
	if err != nil {
		logger.Fatal("open file", zap.String("file", filePath), zap.Error(err))
	}
	defer f.Close()

	backend := strapi.New(cfg.StrapiHost, cfg.StrapiToken, nil, logger)
	imp := importer.NewCSVImporter(f,
		productrepo.NewStrapi(backend, logger),
		categorysvc.New(categoryrepo.NewStrapi(backend, logger)),
		logger,
	)

	start := time.Now()
	res, err := imp.Run(context.Background())
	if err != nil {
		logger.Fatal("import failed", zap.Int("imported", res.Imported), zap.Error(err))
	}
	logger.Info("import finished",
		zap.Int("imported", res.Imported),
		zap.Int("skipped", res.Skipped),
		zap.Duration("took", time.Since(start).Truncate(time.Millisecond)),
	)
}

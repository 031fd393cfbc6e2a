package main

import (
	"net/http"
	"os"

	"github.com/rs/zerolog"

	"github.com/fleximarket/reconciler/internal/api"
	"github.com/fleximarket/reconciler/internal/config"
	"github.com/fleximarket/reconciler/internal/fees"
	"github.com/fleximarket/reconciler/internal/ingestion"
	"github.com/fleximarket/reconciler/internal/jobs"
	"github.com/fleximarket/reconciler/internal/recon"
	"github.com/fleximarket/reconciler/internal/store"
)

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if os.Getenv("APP_ENV") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "fleximarket.db"
	}

	logger.Info().Str("path", dbPath).Msg("initializing database")
	db, err := store.InitDB(dbPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init db")
	}
	defer db.Close()

	// Stores.
	txnStore := store.NewTransactionStore(db)
	settStore := store.NewSettlementStore(db)
	runStore := store.NewRunStore(db)

	// Services. Config is loaded fresh per run so threshold changes take
	// effect without a restart.
	engine := recon.NewEngine(store.NewSnapshots(txnStore, settStore), logger)
	reconSvc := recon.NewService(engine, runStore, config.Load, logger)
	ingestionSvc := ingestion.NewService(txnStore, settStore, logger)
	tracker := jobs.NewTracker(reconSvc, logger)
	analyzer := fees.NewAnalyzer(logger)

	router := api.NewRouter(txnStore, settStore, runStore, ingestionSvc, reconSvc, tracker, analyzer, config.Load)

	logger.Info().Str("port", port).Msg("FlexiMarket settlement reconciler listening")
	if err := http.ListenAndServe(":"+port, router); err != nil {
		logger.Fatal().Err(err).Msg("server failed")
	}
}

package main

import (
	"encoding/json"
	"errors"
	"flag"
	"os"

	"go.uber.org/zap"

	fin "github.com/driftline/finbook"
	"github.com/driftline/finbook/api"
	"github.com/driftline/finbook/store"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "listen address for the HTTP API")
		dataDir    = flag.String("data", "data/finbook", "pebble data directory")
		configPath = flag.String("config", "", "venue config JSON, used to initialize a fresh store")
	)
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	fin.SetLogger(logger)

	st, err := store.OpenPebble(*dataDir)
	if err != nil {
		logger.Fatal("open store", zap.String("dir", *dataDir), zap.Error(err))
	}
	defer func() { _ = st.Close() }()

	exchange := fin.New(st)

	if *configPath != "" {
		raw, err := os.ReadFile(*configPath)
		if err != nil {
			logger.Fatal("read config", zap.String("path", *configPath), zap.Error(err))
		}
		var cfg fin.Config
		if err := json.Unmarshal(raw, &cfg); err != nil {
			logger.Fatal("parse config", zap.Error(err))
		}
		switch err := exchange.Init(cfg); {
		case errors.Is(err, fin.ErrAlreadyInitialized):
			logger.Info("store already initialized, keeping existing config")
		case err != nil:
			logger.Fatal("initialize venue", zap.Error(err))
		default:
			logger.Info("venue initialized",
				zap.String("base", cfg.BaseDenom),
				zap.String("quote", cfg.QuoteDenom))
		}
	}

	server := api.NewServer(exchange, logger)
	if err := server.Start(*addr); err != nil {
		logger.Fatal("api server stopped", zap.Error(err))
	}
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cbodonnell/trustecho/pkg/api"
	"github.com/cbodonnell/trustecho/pkg/game"
	"github.com/cbodonnell/trustecho/pkg/gateway"
	"github.com/cbodonnell/trustecho/pkg/log"
	"github.com/cbodonnell/trustecho/pkg/store"
	"github.com/cbodonnell/trustecho/pkg/workers"
	"github.com/joho/godotenv"
)

func main() {
	wsPort := flag.Int("ws-port", 8888, "Websocket gateway port")
	apiPort := flag.Int("api-port", 8889, "HTTP API port")
	storeBackend := flag.String("store", "memory", "Store backend (memory, sqlite, postgres)")
	sqlitePath := flag.String("sqlite-path", "trustecho.db", "Path to the SQLite database file")
	migrations := flag.String("migrations", "migrations/sqlite", "Path to the SQLite migrations directory")
	reapInterval := flag.Duration("reap-interval", 5*time.Minute, "How often to close out stale waiting rooms")
	roomMaxAge := flag.Duration("room-max-age", time.Hour, "How long a waiting room may sit unfilled")
	logLevel := flag.String("log-level", "info", "Log level")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Debug("No .env file loaded: %v", err)
	}

	parsedLogLevel, err := log.ParseLogLevel(*logLevel)
	if err != nil {
		panic(fmt.Sprintf("Failed to parse log level: %v", err))
	}

	logger := log.New(os.Stdout, "", log.DefaultLoggerFlag, parsedLogLevel)
	log.SetDefaultLogger(logger)
	log.Info("Log level set to %s", parsedLogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var gameStore store.Store
	switch *storeBackend {
	case "memory":
		gameStore = store.NewInMemoryStore()
	case "sqlite":
		gameStore, err = store.NewSQLiteStore(ctx, *sqlitePath, *migrations)
		if err != nil {
			panic(fmt.Sprintf("Failed to create sqlite store: %v", err))
		}
	case "postgres":
		connStr := os.Getenv("DATABASE_URL")
		if connStr == "" {
			panic("DATABASE_URL environment variable must be set")
		}
		gameStore, err = store.NewPostgresStore(ctx, connStr)
		if err != nil {
			panic(fmt.Sprintf("Failed to create postgres store: %v", err))
		}
	default:
		panic(fmt.Sprintf("Unknown store backend: %s", *storeBackend))
	}
	defer gameStore.Close(ctx)

	pool := game.NewDefaultSituationPool()

	apiServer := api.NewAPIServer(api.NewAPIServerOptions{
		Port:          *apiPort,
		Store:         gameStore,
		SituationPool: pool,
	})
	go apiServer.Start()

	reaper := workers.NewRoomReaperWorker(workers.NewRoomReaperWorkerOptions{
		Store:    gameStore,
		Interval: *reapInterval,
		MaxAge:   *roomMaxAge,
	})
	go reaper.Start(ctx)

	gatewayServer := gateway.NewGatewayServer(gateway.NewGatewayServerOptions{
		Port:          *wsPort,
		Store:         gameStore,
		SituationPool: pool,
	})
	go gatewayServer.Start(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := apiServer.Stop(shutdownCtx); err != nil {
		log.Error("Failed to stop API server: %v", err)
	}
}
